package api

// SoftAPNotifier is the Wi-Fi SoftAP collaborator: a single one-way
// notification with no return value and no acknowledgment.
type SoftAPNotifier interface {
	// OnFailure reports that the access point on interfaceName failed.
	OnFailure(interfaceName string)
}

// SoftAPNotifierFunc adapts a function to SoftAPNotifier.
type SoftAPNotifierFunc func(interfaceName string)

// OnFailure implements SoftAPNotifier.
func (f SoftAPNotifierFunc) OnFailure(interfaceName string) {
	f(interfaceName)
}
