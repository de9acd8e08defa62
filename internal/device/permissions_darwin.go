//go:build darwin

package device

/*
#cgo LDFLAGS: -framework AVFoundation
#import <AVFoundation/AVFoundation.h>

int checkMicrophonePermission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

void requestMicrophonePermission() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}
*/
import "C"

import (
	"context"
	"time"

	"github.com/petems/blowsense/internal/session"
)

const (
	permissionNotDetermined = 0
	permissionRestricted    = 1
	permissionDenied        = 2
	permissionAuthorized    = 3
)

// awaitMicrophonePermission blocks until macOS resolves microphone access.
// A NotDetermined status triggers the system prompt; the decision is then
// polled because AVFoundation reports it asynchronously. Only the external
// platform (or ctx) bounds the wait.
func awaitMicrophonePermission(ctx context.Context) error {
	switch int(C.checkMicrophonePermission()) {
	case permissionAuthorized:
		return nil
	case permissionDenied, permissionRestricted:
		return session.ErrPermissionDenied
	}

	C.requestMicrophonePermission()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			switch int(C.checkMicrophonePermission()) {
			case permissionAuthorized:
				return nil
			case permissionDenied, permissionRestricted:
				return session.ErrPermissionDenied
			}
		}
	}
}
