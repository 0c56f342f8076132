package logsvc

import (
	"log"
	"sync/atomic"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/elearn/core"
	"github.com/trezcool/elearn/core/user"
)

// RollbarLogger reports to rollbar and echoes every entry on a std logger.
// Debug entries are dropped unless the app runs in debug mode.
type RollbarLogger struct {
	std     *log.Logger
	debug   bool
	enabled int32
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)

	l := &RollbarLogger{std: std, debug: conf.Debug}
	// nothing to report to without a token
	l.Enable(conf.RollbarToken != "" && !conf.TestMode)
	return l
}

func (l *RollbarLogger) Enable(enabled bool) {
	var v int32
	if enabled {
		v = 1
	}
	atomic.StoreInt32(&l.enabled, v)
	rollbar.SetEnabled(enabled)
}

func (l *RollbarLogger) reporting() bool { return atomic.LoadInt32(&l.enabled) == 1 }

// prepare builds rollbar's args out of msg & args. expected fmt: error, map[string]interface{}, user.User.
// The first user.User becomes the rollbar person, the other ones are reported as extras.
func (l *RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var (
		person *user.User
		extras = make(map[string]interface{})
	)
	newArgs := make([]interface{}, 0, len(args)+2)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		switch v := arg.(type) {
		case user.User:
			if person == nil {
				usr := v
				person = &usr
			}
		case map[string]interface{}:
			for k, val := range v {
				extras[k] = val
			}
		default:
			newArgs = append(newArgs, arg)
		}
	}

	if person != nil && !person.IsAnonymous() {
		rollbar.SetPerson(person.ID, person.Username, person.Email)
		extras["roles"] = person.Roles
	} else {
		rollbar.ClearPerson()
	}
	if len(extras) > 0 {
		newArgs = append(newArgs, extras)
	}
	return newArgs
}

func (l *RollbarLogger) print(level, msg string, args []interface{}) {
	l.std.Printf("[%s] %s", level, msg)
	for _, arg := range args {
		if usr, ok := arg.(user.User); ok {
			l.std.Printf("  user: %s (%s)", usr.ID, usr.Username)
			continue
		}
		l.std.Printf("  %+v", arg)
	}
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	if !l.debug {
		return
	}
	if l.reporting() {
		rollbar.Debug(l.prepare(msg, args)...)
	}
	l.print("DEBUG", msg, args)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	if l.reporting() {
		rollbar.Info(l.prepare(msg, args)...)
	}
	l.print("INFO", msg, args)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	if l.reporting() {
		rollbar.Warning(l.prepare(msg, args)...)
	}
	l.print("WARN", msg, args)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	if l.reporting() {
		rollbar.Error(l.prepare(msg, args)...)
	}
	l.print("ERROR", msg, args)
}

// Fatal flushes rollbar before exiting.
func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	if l.reporting() {
		rollbar.Critical(l.prepare(msg, args)...)
		rollbar.Wait()
	}
	l.print("FATAL", msg, args)
	l.std.Fatal(msg)
}
