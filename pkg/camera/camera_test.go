package camera

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/acentior/camkit/pkg/media"
	"github.com/acentior/camkit/pkg/media/mediatest"
	"github.com/stretchr/testify/suite"
)

type SessionSuite struct {
	suite.Suite
	acquirer *mediatest.Acquirer
	session  *Session
	ctx      context.Context
}

// run before each test
func (s *SessionSuite) SetupTest() {
	s.acquirer = mediatest.NewAcquirer()
	s.session = NewSession(s.acquirer)
	s.ctx = context.Background()
}

// run after each test
func (s *SessionSuite) TearDownTest() {
	s.session.Stop(nil)
}

// listen for 'go test' command --> run test methods
func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) Test_StopNeverStarted() {
	s.NotPanics(func() {
		s.session.Stop(nil)
		s.session.Stop(nil)
	})
	s.False(s.session.Active())
}

func (s *SessionSuite) Test_Start() {
	c := media.Constraints{FacingMode: media.FacingUser}
	stream, err := s.session.Start(s.ctx, c)
	s.Require().NoError(err)
	s.NotNil(stream)
	s.True(s.session.Active())

	got, ok := s.session.Constraints()
	s.True(ok)
	s.Equal(c, got)
}

func (s *SessionSuite) Test_StartWithEqualConstraintsDoesNotReacquire() {
	first, err := s.session.Start(s.ctx, media.Constraints{FacingMode: media.FacingUser, Width: 640})
	s.Require().NoError(err)

	// a fresh but equal value, as a caller rebuilding it every cycle would pass
	second, err := s.session.Start(s.ctx, media.Constraints{FacingMode: media.FacingUser, Width: 640})
	s.Require().NoError(err)

	s.Same(first, second)
	s.Len(s.acquirer.Calls(), 1)
	s.False(first.(*mediatest.Stream).Video().Stopped())
}

func (s *SessionSuite) Test_RestartStopsPriorTracksFirst() {
	first, err := s.session.Start(s.ctx, media.Constraints{FacingMode: media.FacingUser})
	s.Require().NoError(err)

	_, err = s.session.Start(s.ctx, media.Constraints{FacingMode: media.FacingEnvironment})
	s.Require().NoError(err)

	calls := s.acquirer.Calls()
	s.Require().Len(calls, 2)
	track := first.(*mediatest.Stream).Video()
	s.True(track.Stopped())
	s.Less(track.StoppedAt(), calls[1].At, "prior track must stop before the new acquisition")
}

func (s *SessionSuite) Test_Unsupported() {
	s.acquirer.Unsupported = true
	_, err := s.session.Start(s.ctx, media.Constraints{})
	s.ErrorIs(err, media.ErrDeviceUnsupported)
	s.Empty(s.acquirer.Calls())
}

func (s *SessionSuite) Test_AcquisitionFailure() {
	s.acquirer.Err = media.ErrPermissionDenied
	_, err := s.session.Start(s.ctx, media.Constraints{})
	s.ErrorIs(err, media.ErrPermissionDenied)
	s.False(s.session.Active())

	// caller may retry
	_, err = s.session.Start(s.ctx, media.Constraints{})
	s.NoError(err)
}

func (s *SessionSuite) Test_StopIsIdempotent() {
	stream, err := s.session.Start(s.ctx, media.Constraints{})
	s.Require().NoError(err)

	s.session.Stop(nil)
	s.session.Stop(stream)
	s.session.Stop(nil)

	s.False(s.session.Active())
	s.Equal(1, stream.(*mediatest.Stream).Video().Stops())
}

func (s *SessionSuite) Test_StopReplacedStreamIsNoop() {
	first, err := s.session.Start(s.ctx, media.Constraints{Width: 320})
	s.Require().NoError(err)
	second, err := s.session.Start(s.ctx, media.Constraints{Width: 640})
	s.Require().NoError(err)

	s.session.Stop(first)
	s.session.Stop(first)

	s.Equal(1, first.(*mediatest.Stream).Video().Stops())
	s.Equal(0, second.(*mediatest.Stream).Video().Stops())
	s.Same(second, s.session.Stream())
}

func (s *SessionSuite) Test_StopForeignStreamOnce() {
	foreign := mediatest.NewStream("foreign", mediatest.Gradient(4, 4), &mediatest.Clock{})

	s.session.Stop(foreign)
	s.session.Stop(foreign)

	s.Equal(1, foreign.Video().Stops())
}

func (s *SessionSuite) Test_StopAfterStopRestartsAcquisition() {
	c := media.Constraints{Width: 320}
	_, err := s.session.Start(s.ctx, c)
	s.Require().NoError(err)
	s.session.Stop(nil)

	_, err = s.session.Start(s.ctx, c)
	s.Require().NoError(err)
	s.Len(s.acquirer.Calls(), 2)
}

func (s *SessionSuite) Test_TrackEndedIsReported() {
	ended := make(chan error, 1)
	s.session.OnEnded(func(_ media.Stream, err error) { ended <- err })

	stream, err := s.session.Start(s.ctx, media.Constraints{})
	s.Require().NoError(err)

	unplugged := errors.New("device unplugged")
	stream.(*mediatest.Stream).Video().End(unplugged)

	select {
	case err := <-ended:
		s.ErrorIs(err, unplugged)
	case <-time.After(time.Second):
		s.Fail("track end was not reported")
	}
	s.False(s.session.Active())
}

func (s *SessionSuite) Test_StoppedStreamEndingIsIgnored() {
	ended := make(chan error, 1)
	s.session.OnEnded(func(_ media.Stream, err error) { ended <- err })

	stream, err := s.session.Start(s.ctx, media.Constraints{})
	s.Require().NoError(err)
	s.session.Stop(nil)
	stream.(*mediatest.Stream).Video().End(errors.New("closed"))

	select {
	case <-ended:
		s.Fail("explicit stop must not surface as a fault")
	case <-time.After(20 * time.Millisecond):
	}
}
