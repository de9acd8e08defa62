//go:build !darwin

package device

import "context"

// awaitMicrophonePermission is a no-op on platforms without an explicit
// microphone permission model; opening the device either works or fails.
func awaitMicrophonePermission(ctx context.Context) error {
	return nil
}
