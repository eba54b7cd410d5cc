package tuyalocal

import "github.com/muurk/tuyalocal/internal/fault"

// Error is returned by every Client operation that fails
type Error = fault.Error

// ErrorKind categorizes an Error
type ErrorKind = fault.Kind

// Error kinds
const (
	KindValidation = fault.KindValidation
	KindNotFound   = fault.KindNotFound
	KindProtocol   = fault.KindProtocol
	KindParse      = fault.KindParse
	KindConnection = fault.KindConnection
)

// HintBusyDevice is the hint attached to socket failures after connect
const HintBusyDevice = fault.HintBusyDevice

// IsValidation reports whether err is a descriptor validation error
func IsValidation(err error) bool { return fault.IsValidation(err) }

// IsNotFound reports whether err is an unknown-device error
func IsNotFound(err error) bool { return fault.IsNotFound(err) }

// IsProtocol reports whether err is a framing error
func IsProtocol(err error) bool { return fault.IsProtocol(err) }

// IsParse reports whether err is a response parsing error
func IsParse(err error) bool { return fault.IsParse(err) }

// IsConnection reports whether err is a connect, write or read failure
func IsConnection(err error) bool { return fault.IsConnection(err) }

// KindOf returns the kind of the first Error in err's chain
func KindOf(err error) (ErrorKind, bool) { return fault.KindOf(err) }

// HintFor returns the troubleshooting hint carried by err, if any
func HintFor(err error) string { return fault.HintFor(err) }
