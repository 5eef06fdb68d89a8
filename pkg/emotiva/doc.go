// Package emotiva is the top-level client for networked Emotiva A/V
// receivers. It composes discovery, transport, protocol and dispatcher
// behind one idempotent Connect/Disconnect pair and offers convenience
// helpers for common receiver operations.
//
// A minimal session:
//
//	client := emotiva.NewClient(emotiva.DefaultConfig("192.168.1.50"), nil)
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Disconnect(ctx)
//
//	client.On("volume", func(ctx context.Context, _, value string) {
//		fmt.Println("volume is now", value)
//	})
//	client.Subscribe(ctx, []string{"volume"})
//	client.PowerOn(ctx)
package emotiva
