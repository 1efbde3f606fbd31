package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/h64log/internal/device"
	"github.com/srg/h64log/internal/devicefactory"
	"github.com/srg/h64log/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// Test device addresses for consistent fake device identification
const (
	TestStrapAddress = "C4:5E:12:AB:CD:01"
	TestPhoneAddress = "11:22:33:44:55:66"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var rowTimestamp = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)

// syncBuffer is a bytes.Buffer safe for a command writing while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CommandTestSuite runs h64log against a fake transport in a temp dir.
// Every test gets a fresh root command so flag state does not leak.
type CommandTestSuite struct {
	suite.Suite
	Transport *testutils.FakeTransport
	Dir       string

	originalFactory func(*logrus.Logger) device.Transport
}

func (s *CommandTestSuite) SetupTest() {
	s.Dir = s.T().TempDir()
	s.T().Setenv("H64_CONFIG", "")
	s.T().Setenv("H64_LOG_DIR", filepath.Join(s.Dir, "logs"))
	s.T().Setenv("H64_LOG_LEVEL", "")

	s.originalFactory = devicefactory.TransportFactory
	s.UseTransport(testutils.NewFakeTransport())
}

func (s *CommandTestSuite) TearDownTest() {
	devicefactory.TransportFactory = s.originalFactory
}

// UseTransport makes the next command use tr.
func (s *CommandTestSuite) UseTransport(tr *testutils.FakeTransport) {
	s.Transport = tr
	devicefactory.TransportFactory = func(*logrus.Logger) device.Transport { return tr }
}

// Strap builds the default heart-rate strap.
func (s *CommandTestSuite) Strap() *testutils.PeripheralBuilder {
	return testutils.NewPeripheralBuilder(TestStrapAddress).
		WithName("H64 0042").
		WithRSSI(-58).
		WithHeartRateService()
}

// ExecuteCommand runs a fresh root command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	return s.ExecuteCommandContext(context.Background(), args...)
}

// ExecuteCommandContext is ExecuteCommand with a caller-controlled context.
func (s *CommandTestSuite) ExecuteCommandContext(ctx context.Context, args ...string) (string, error) {
	out := &syncBuffer{}
	err := s.Start(ctx, out, args...).Wait()
	return out.String(), err
}

// RunningCommand is a command executing in the background.
type RunningCommand struct {
	Out  *syncBuffer
	done chan error
}

// Wait blocks until the command returns.
func (r *RunningCommand) Wait() error {
	return <-r.done
}

// Start executes a fresh root command on its own goroutine.
func (s *CommandTestSuite) Start(ctx context.Context, out *syncBuffer, args ...string) *RunningCommand {
	cmd := newRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)

	r := &RunningCommand{Out: out, done: make(chan error, 1)}
	go func() { r.done <- cmd.ExecuteContext(ctx) }()
	return r
}

// WaitForOutput waits until the command has printed substr.
func (s *CommandTestSuite) WaitForOutput(r *RunningCommand, substr string) {
	s.Require().Eventually(func() bool {
		return strings.Contains(r.Out.String(), substr)
	}, waitFor, tick, "output never contained %q:\n%s", substr, r.Out.String())
}

// ReadFile returns the content of path, failing the test if it is missing.
func (s *CommandTestSuite) ReadFile(path string) string {
	data, err := os.ReadFile(path)
	s.Require().NoError(err)
	return string(data)
}

// MaskTimestamps replaces wall-clock timestamps with <ts>.
func MaskTimestamps(text string) string {
	return rowTimestamp.ReplaceAllString(text, "<ts>")
}
