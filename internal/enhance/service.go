package enhance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultTimeout = 15 * time.Second

const (
	OutcomeSuccess  = "success"
	OutcomeInvalid  = "invalid"
	OutcomeUpstream = "upstream_error"
	OutcomeTimeout  = "timeout"
)

var (
	// ErrMissingContent indicates blank note content.
	ErrMissingContent = errors.New("enhance: content is required")
	// ErrMissingMode indicates the enhancement type was not supplied.
	ErrMissingMode = errors.New("enhance: type is required")
	// ErrInvalidMode indicates an enhancement type outside the supported set.
	ErrInvalidMode = errors.New("enhance: invalid type")

	errMissingGenerator = errors.New("enhance: generator is required")
	errEmptyCompletion  = errors.New("enhance: empty completion")
)

// UpstreamError reports a failed or unusable response from the inference
// API. StatusCode is zero when no HTTP response was received.
type UpstreamError struct {
	StatusCode int
	Payload    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("enhance: upstream failure: %v", e.Err)
	}
	return fmt.Sprintf("enhance: upstream status %d: %v", e.StatusCode, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Observer receives one outcome per enhancement attempt.
type Observer interface {
	ObserveEnhancement(mode, outcome string)
}

type ServiceConfig struct {
	Generator Generator
	Timeout   time.Duration
	Logger    *zap.Logger
	Observer  Observer
}

// Service validates enhancement requests and forwards them to the generator
// with a bounded wait.
type Service struct {
	generator Generator
	timeout   time.Duration
	logger    *zap.Logger
	observer  Observer
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Generator == nil {
		return nil, errMissingGenerator
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		generator: cfg.Generator,
		timeout:   timeout,
		logger:    logger,
		observer:  cfg.Observer,
	}, nil
}

// Enhance returns the generated text for content under the given mode.
// Validation failures wrap ErrMissingContent, ErrMissingMode or
// ErrInvalidMode; generator failures are returned as *UpstreamError.
func (s *Service) Enhance(ctx context.Context, content, rawMode string) (string, error) {
	if strings.TrimSpace(content) == "" {
		s.observe(rawMode, OutcomeInvalid)
		return "", ErrMissingContent
	}
	mode, err := ParseMode(rawMode)
	if err != nil {
		s.observe(rawMode, OutcomeInvalid)
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	text, err := s.generator.Generate(callCtx, mode.Prompt(content))
	elapsed := time.Since(started)
	if err == nil && strings.TrimSpace(text) == "" {
		err = &UpstreamError{StatusCode: http.StatusOK, Payload: "empty completion", Err: errEmptyCompletion}
	}
	if err != nil {
		upstreamErr := s.classify(callCtx, err)
		outcome := OutcomeUpstream
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			outcome = OutcomeTimeout
		}
		s.observe(string(mode), outcome)
		s.logger.Error("enhancement failed",
			zap.String("mode", string(mode)),
			zap.Int("upstream_status", upstreamErr.StatusCode),
			zap.String("upstream_error", upstreamErr.Payload),
			zap.Duration("elapsed", elapsed),
			zap.Error(upstreamErr.Err))
		return "", upstreamErr
	}

	s.observe(string(mode), OutcomeSuccess)
	s.logger.Debug("enhancement completed",
		zap.String("mode", string(mode)),
		zap.Duration("elapsed", elapsed))
	return text, nil
}

func (s *Service) classify(callCtx context.Context, err error) *UpstreamError {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &UpstreamError{
			StatusCode: http.StatusGatewayTimeout,
			Payload:    fmt.Sprintf("no response within %s", s.timeout),
			Err:        err,
		}
	}
	return &UpstreamError{Payload: "upstream unreachable", Err: err}
}

func (s *Service) observe(mode, outcome string) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveEnhancement(mode, outcome)
}
