package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/elearn/core"
	"github.com/trezcool/elearn/core/catalog"
	"github.com/trezcool/elearn/core/entitlement"
	"github.com/trezcool/elearn/core/quiz"
	"github.com/trezcool/elearn/core/user"
)

type (
	// EntitlementResolver is implemented by *entitlement.Resolver.
	EntitlementResolver interface {
		ResolveEntitlements(ctx context.Context, usr user.User) (entitlement.AccessibleSet, error)
		HasAccessToContent(ctx context.Context, usr user.User, curriculumID int64, classLevelID *int64) (bool, error)
	}

	// AccessGate is implemented by *access.Gate.
	AccessGate interface {
		AuthorizeQuiz(ctx context.Context, usr user.User, quizID int64) (catalog.Quiz, error)
		AuthorizeContent(ctx context.Context, usr user.User, curriculumID int64, classLevelID *int64) error
		VisibleCurricula(ctx context.Context, usr user.User) ([]catalog.Curriculum, error)
	}

	// QuizService is implemented by *quiz.Service.
	QuizService interface {
		StartOrResume(ctx context.Context, usr user.User, quizID int64, opts quiz.StartOptions) (quiz.Attempt, bool, error)
		NextQuestion(ctx context.Context, usr user.User, attemptID string) (quiz.Attempt, *quiz.QuestionView, error)
		SubmitAnswer(ctx context.Context, usr user.User, attemptID string, sub quiz.Submission) (quiz.Attempt, error)
		Finish(ctx context.Context, usr user.User, attemptID string) (quiz.Attempt, error)
		GetResults(ctx context.Context, usr user.User, attemptID string) (quiz.Results, error)
		ListAttempts(ctx context.Context, usr user.User, quizID *int64) ([]quiz.Attempt, error)
	}

	ServerDeps struct {
		Conf         *core.Config
		Logger       core.Logger
		Catalog      catalog.Repository
		Entitlements EntitlementResolver
		Gate         AccessGate
		QuizSvc      QuizService
		Validate     *validator.Validate
		Translator   ut.Translator
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Catalog, "Catalog"),
		vala.IsNotNil(deps.Entitlements, "Entitlements"),
		vala.IsNotNil(deps.Gate, "Gate"),
		vala.IsNotNil(deps.QuizSvc, "QuizSvc"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Translator, "Translator"),
	).CheckAndPanic()

	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1", middleware.JWTWithConfig(jwtConfig(conf)))

	registerEntitlementAPI(v1, s.deps)
	registerAttemptAPI(v1, s.deps)
}

// Start blocks until the server stops; errors other than a graceful stop are sent to Errors().
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
