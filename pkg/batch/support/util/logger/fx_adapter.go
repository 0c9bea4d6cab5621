package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLoggerAdapter implements fxevent.Logger on top of the package-level logger.
// Provide/invoke chatter goes to DEBUG so that step logs stay readable at INFO.
type FxLoggerAdapter struct{}

// NewFxLoggerAdapter creates a new instance of FxLoggerAdapter.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{}
}

// LogEvent logs events from Fx.
func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuted:
		logHook("OnStart", e.FunctionName, e.Err)
	case *fxevent.OnStopExecuted:
		logHook("OnStop", e.FunctionName, e.Err)
	case *fxevent.Provided:
		if e.Err != nil {
			Errorf("fx: provide failed in %s: %v", e.ConstructorName, e.Err)
			return
		}
		Debugf("fx: provided %s", strings.Join(e.OutputTypeNames, ", "))
	case *fxevent.Supplied:
		if e.Err != nil {
			Errorf("fx: supply of %s failed: %v", e.TypeName, e.Err)
		}
	case *fxevent.Invoked:
		if e.Err != nil {
			Errorf("fx: invoke %s failed: %v", shortFuncName(e.FunctionName), e.Err)
		}
	case *fxevent.Stopping:
		Infof("fx: received signal %s, stopping", strings.ToUpper(e.Signal.String()))
	case *fxevent.Stopped:
		if e.Err != nil {
			Errorf("fx: stop failed: %v", e.Err)
		}
	case *fxevent.RollingBack:
		Errorf("fx: start failed, rolling back: %v", e.StartErr)
	case *fxevent.RolledBack:
		if e.Err != nil {
			Errorf("fx: rollback failed: %v", e.Err)
		}
	case *fxevent.Started:
		if e.Err != nil {
			Errorf("fx: start failed: %v", e.Err)
			return
		}
		Infof("Application started.")
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			Errorf("fx: custom logger initialization failed: %v", e.Err)
		}
	}
}

func logHook(kind, funcName string, err error) {
	if err != nil {
		Errorf("fx: %s hook %s failed: %v", kind, shortFuncName(funcName), err)
		return
	}
	Debugf("fx: %s hook %s executed", kind, shortFuncName(funcName))
}

// shortFuncName strips closure suffixes such as ".func1" from fx function names.
func shortFuncName(funcName string) string {
	if idx := strings.LastIndex(funcName, ".func"); idx != -1 {
		return funcName[:idx]
	}
	return funcName
}
