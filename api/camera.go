// Package api defines the contracts of external collaborators of the
// mapping service: the camera session factory and the SoftAP failure
// notifier. Both are declarative request/response or notification
// surfaces with no state machine of their own.
package api

import (
	"io"
	"sync/atomic"
)

// CameraStatus is the fixed status enumeration of the camera collaborator.
type CameraStatus int32

// Camera statuses.
const (
	CameraStatusOK CameraStatus = iota
	CameraStatusInternalError
	CameraStatusDisconnected
	CameraStatusIllegalArgument
	CameraStatusInUse
	CameraStatusMaxInUse
	CameraStatusMethodNotSupported
	CameraStatusOperationNotSupported
)

var cameraStatusNames = map[CameraStatus]string{
	CameraStatusOK:                    "OK",
	CameraStatusInternalError:         "INTERNAL_ERROR",
	CameraStatusDisconnected:          "CAMERA_DISCONNECTED",
	CameraStatusIllegalArgument:       "ILLEGAL_ARGUMENT",
	CameraStatusInUse:                 "CAMERA_IN_USE",
	CameraStatusMaxInUse:              "MAX_CAMERAS_IN_USE",
	CameraStatusMethodNotSupported:    "METHOD_NOT_SUPPORTED",
	CameraStatusOperationNotSupported: "OPERATION_NOT_SUPPORTED",
}

func (s CameraStatus) String() string {
	if n, ok := cameraStatusNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// TorchMode switches the camera's flash unit used as a torch.
type TorchMode int32

// Torch modes.
const (
	TorchModeOff TorchMode = iota
	TorchModeOn
)

// ResourceCost describes what opening a camera costs.
type ResourceCost struct {
	// Cost is a 0-100 share of the camera subsystem's resources.
	Cost uint32
	// ConflictingDevices lists camera ids that cannot be open
	// simultaneously with this one.
	ConflictingDevices []string
}

// SessionHandle is an open camera session.
type SessionHandle interface {
	io.Closer
}

// CameraSession is the camera-device collaborator: stateless
// request/response calls with a fixed status enumeration. Once a call
// reports CameraStatusDisconnected, every subsequent call on that
// instance must repeat it; StickySession implements that rule for
// backends that do not.
type CameraSession interface {
	GetResourceCost() (ResourceCost, CameraStatus)
	GetCameraCharacteristics() ([]byte, CameraStatus)
	SetTorchMode(mode TorchMode) CameraStatus
	Open() (SessionHandle, CameraStatus)
	DumpState(w io.Writer) CameraStatus
}

// StickySession wraps a CameraSession and pins CameraStatusDisconnected:
// after the wrapped session reports it once, every later call answers it
// without reaching the backend.
type StickySession struct {
	inner        CameraSession
	disconnected atomic.Bool
}

// NewStickySession wraps inner.
func NewStickySession(inner CameraSession) *StickySession {
	return &StickySession{inner: inner}
}

func (s *StickySession) observe(st CameraStatus) CameraStatus {
	if st == CameraStatusDisconnected {
		s.disconnected.Store(true)
	}
	return st
}

// GetResourceCost implements CameraSession.
func (s *StickySession) GetResourceCost() (ResourceCost, CameraStatus) {
	if s.disconnected.Load() {
		return ResourceCost{}, CameraStatusDisconnected
	}
	cost, st := s.inner.GetResourceCost()
	return cost, s.observe(st)
}

// GetCameraCharacteristics implements CameraSession.
func (s *StickySession) GetCameraCharacteristics() ([]byte, CameraStatus) {
	if s.disconnected.Load() {
		return nil, CameraStatusDisconnected
	}
	b, st := s.inner.GetCameraCharacteristics()
	return b, s.observe(st)
}

// SetTorchMode implements CameraSession.
func (s *StickySession) SetTorchMode(mode TorchMode) CameraStatus {
	if s.disconnected.Load() {
		return CameraStatusDisconnected
	}
	return s.observe(s.inner.SetTorchMode(mode))
}

// Open implements CameraSession.
func (s *StickySession) Open() (SessionHandle, CameraStatus) {
	if s.disconnected.Load() {
		return nil, CameraStatusDisconnected
	}
	h, st := s.inner.Open()
	return h, s.observe(st)
}

// DumpState implements CameraSession.
func (s *StickySession) DumpState(w io.Writer) CameraStatus {
	if s.disconnected.Load() {
		return CameraStatusDisconnected
	}
	return s.observe(s.inner.DumpState(w))
}
