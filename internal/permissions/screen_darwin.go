//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework CoreGraphics
#include <CoreGraphics/CoreGraphics.h>

// prompt != 0 shows the system dialog when access is missing.
static int airrecScreenCaptureAccess(int prompt) {
    if (prompt) {
        return CGRequestScreenCaptureAccess();
    }
    return CGPreflightScreenCaptureAccess();
}
*/
import "C"

func platformScreenCaptureAccess(prompt bool) bool {
	p := C.int(0)
	if prompt {
		p = 1
	}
	return C.airrecScreenCaptureAccess(p) != 0
}
