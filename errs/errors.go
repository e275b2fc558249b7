// Package errs implements the error taxonomy and the error handler of
// spec §4.5 and §7: classification, logging, one-shot status
// latching, and fatal fault injection into the printer state machine.
package errs

import (
	"errors"
	"fmt"
	"log"
	"syscall"

	"printengine.dev/status"
)

// Code is the closed taxonomy of errors the engine can raise. It
// shares its numeric space with status.ErrorCode so a Code can be
// published in a status.Record without translation.
type Code = status.ErrorCode

const (
	Success Code = iota
	MotorError
	MotorTimeoutError
	UnknownMotorStatus
	FrontPanelError
	UnknownFrontPanelStatus
	ExposureTimerError
	MotorTimeoutTimerError
	RemainingExposureError
	StatusPipeCreation
	GpioInputError
	NoImageForLayer
	CantShowImage
	CantShowBlack
	NoPrintDataAvailable
	InvalidPrintData
	PrintDataStageError
	PrintDataSettingsError
	PrintDataMoveError
	PrintDataRemoveError
	CantLoadPrintSettingsFile
	IllegalStateForPrintData
	SeparationRpmOutOfRange
	UnknownCommandInput
	HardwareNeeded
)

var names = map[Code]string{
	Success:                   "Success",
	MotorError:                "MotorError",
	MotorTimeoutError:         "MotorTimeoutError",
	UnknownMotorStatus:        "UnknownMotorStatus",
	FrontPanelError:           "FrontPanelError",
	UnknownFrontPanelStatus:   "UnknownFrontPanelStatus",
	ExposureTimerError:        "ExposureTimer",
	MotorTimeoutTimerError:    "MotorTimeoutTimer",
	RemainingExposureError:    "RemainingExposure",
	StatusPipeCreation:        "StatusPipeCreation",
	GpioInputError:            "GpioInput",
	NoImageForLayer:           "NoImageForLayer",
	CantShowImage:             "CantShowImage",
	CantShowBlack:             "CantShowBlack",
	NoPrintDataAvailable:      "NoPrintDataAvailable",
	InvalidPrintData:          "InvalidPrintData",
	PrintDataStageError:       "PrintDataStageError",
	PrintDataSettingsError:    "PrintDataSettings",
	PrintDataMoveError:        "PrintDataMove",
	PrintDataRemoveError:      "PrintDataRemove",
	CantLoadPrintSettingsFile: "CantLoadPrintSettingsFile",
	IllegalStateForPrintData:  "IllegalStateForPrintData",
	SeparationRpmOutOfRange:   "SeparationRpmOutOfRange",
	UnknownCommandInput:       "UnknownCommandInput",
	HardwareNeeded:            "HardwareNeeded",
}

// Name returns code's taxonomy name, for logging.
func Name(code Code) string {
	if n, ok := names[code]; ok {
		return n
	}
	return "UnknownErrorCode"
}

// Error is a single raised error: its code, whether it's fatal, an
// optional human message, an optional context integer (e.g. an
// out-of-range RPM), and the errno captured at entry if the cause was
// a syscall failure.
type Error struct {
	Code     Code
	Fatal    bool
	Message  string
	HasValue bool
	Value    int32
	Errno    int32
}

func (e *Error) Error() string {
	s := Name(e.Code)
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.HasValue {
		s += fmt.Sprintf(" (%d)", e.Value)
	}
	if e.Errno != 0 {
		s += fmt.Sprintf(" [errno %d]", e.Errno)
	}
	return s
}

// Sink is the narrow capability the error handler needs from the
// engine: publish the error as the next status record, and — only for
// fatal errors — inject the fault trigger into the state machine.
// Keeping this narrow instead of a back-reference to the whole engine
// follows the dependency-inversion note in spec §9.
type Sink interface {
	RaiseError(code Code, errno int32)
	RaiseFault(code Code)
}

// Handler classifies, logs, and dispatches errors per §4.5.
type Handler struct {
	sink Sink
	log  *log.Logger
}

// NewHandler returns a Handler publishing through sink and logging via
// logger (log.Default() if nil).
func NewHandler(sink Sink, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{sink: sink, log: logger}
}

// Raise classifies, logs at ERR (fatal) or WARNING (non-fatal), tells
// Sink to latch and publish the error, and — if fatal — injects a
// fault into the state machine. cause, if non-nil, supplies the errno
// captured at entry when it wraps a syscall.Errno.
func (h *Handler) Raise(code Code, fatal bool, message string, value int32, hasValue bool, cause error) *Error {
	e := &Error{
		Code:     code,
		Fatal:    fatal,
		Message:  message,
		HasValue: hasValue,
		Value:    value,
		Errno:    errnoOf(cause),
	}
	if fatal {
		h.log.Printf("ERR: %v", e)
	} else {
		h.log.Printf("WARNING: %v", e)
	}
	h.sink.RaiseError(code, e.Errno)
	if fatal {
		h.sink.RaiseFault(code)
	}
	return e
}

func errnoOf(err error) int32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int32(errno)
	}
	return 0
}
