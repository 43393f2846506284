// Package devices tracks the mobile and web push endpoints registered by
// users and the delivery lifecycle of pushes sent to them.
//
// A device is identified by its push token. Registering a token that is
// already known re-binds it to the registering user and reactivates it,
// which covers both app reinstalls and shared devices changing hands.
// Unregistering soft-deactivates the device so its delivery history keeps
// a valid foreign target; devices idle past the inactivity window are
// removed for good by the periodic cleanup.
//
// Every push produces one PushDeliveryLog row per target device. The row
// advances monotonically through sent, delivered and clicked, or moves
// from sent to the terminal failed state. Regressions are rejected.
//
// The Registry is the package entrypoint:
//
//	reg, err := devices.NewRegistry(devices.NewMemoryStore(),
//		devices.WithTransport(fcm),
//	)
//	dev, err := reg.Register(ctx, devices.RegisterInput{
//		UserID:      "u-42",
//		DeviceToken: token,
//		DeviceType:  devices.DeviceTypeAndroid,
//	})
//	res, err := reg.SendPush(ctx, "u-42", note)
//
// When no Transport is configured, sends are simulated and logged as
// sent, so environments without push credentials still exercise the full
// bookkeeping path.
package devices
