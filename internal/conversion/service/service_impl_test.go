package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	activitydomain "github.com/smallbiznis/talechto/internal/activity/domain"
	"github.com/smallbiznis/talechto/internal/config"
	"github.com/smallbiznis/talechto/internal/conversion/domain"
	"github.com/smallbiznis/talechto/internal/conversion/workspace"
	quotadomain "github.com/smallbiznis/talechto/internal/quota/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type quotaMock struct{ mock.Mock }

func (m *quotaMock) CheckLimit(ctx context.Context, principalID string) (quotadomain.Decision, error) {
	args := m.Called(ctx, principalID)
	return args.Get(0).(quotadomain.Decision), args.Error(1)
}

func (m *quotaMock) Record(ctx context.Context, principalID string) error {
	return m.Called(ctx, principalID).Error(0)
}

type activityMock struct{ mock.Mock }

func (m *activityMock) Record(ctx context.Context, principalID string, action activitydomain.Action, details string) error {
	return m.Called(ctx, principalID, action, details).Error(0)
}

func (m *activityMock) List(ctx context.Context, req activitydomain.ListRequest) (activitydomain.ListResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(activitydomain.ListResponse), args.Error(1)
}

func (m *activityMock) actions() []activitydomain.Action {
	var out []activitydomain.Action
	for _, call := range m.Calls {
		if call.Method == "Record" {
			out = append(out, call.Arguments.Get(2).(activitydomain.Action))
		}
	}
	return out
}

// fakeConverter copies the input to the output, or fails.
type fakeConverter struct {
	fail  error
	calls int
	seen  []string
}

func (f *fakeConverter) Convert(_ context.Context, in, out, format string) error {
	f.calls++
	f.seen = append(f.seen, in, out)
	if f.fail != nil {
		return f.fail
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, append([]byte(format+":"), data...), 0o600)
}

type fixture struct {
	svc       domain.Service
	quota     *quotaMock
	activity  *activityMock
	converter *fakeConverter
	dir       string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "work")
	ws, err := workspace.New(config.Config{Convert: config.ConvertConfig{WorkDir: dir}})
	require.NoError(t, err)

	f := &fixture{quota: &quotaMock{}, activity: &activityMock{}, converter: &fakeConverter{}, dir: dir}
	f.activity.On("Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.svc = NewService(Params{
		Log:       zap.NewNop(),
		Policy:    config.NewStaticPolicyHolder(config.DefaultConversionPolicy()),
		Quota:     f.quota,
		Activity:  f.activity,
		Converter: f.converter,
		Workspace: ws,
	})
	return f
}

func (f *fixture) assertWorkdirEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func upload(name string, content []byte) *domain.Upload {
	return &domain.Upload{
		Filename: name,
		Size:     int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
}

func sized(name string, size int64) *domain.Upload {
	u := upload(name, []byte("RIFF"))
	u.Size = size
	return u
}

var freeDecision = quotadomain.Decision{Allowed: true, Remaining: 3}

func TestAdmitDeniedRecordsLimitReached(t *testing.T) {
	f := newFixture(t)
	f.quota.On("CheckLimit", mock.Anything, "anon").Return(quotadomain.Decision{Allowed: false, Remaining: 0}, nil)

	_, err := f.svc.Admit(t.Context(), "anon")
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	f.activity.AssertCalled(t, "Record", mock.Anything, "anon", activitydomain.ActionLimitReached, "Daily limit reached")
}

func TestAdmitAllowedPassesDecisionThrough(t *testing.T) {
	f := newFixture(t)
	f.quota.On("CheckLimit", mock.Anything, "anon").Return(freeDecision, nil)

	d, err := f.svc.Admit(t.Context(), "anon")
	require.NoError(t, err)
	assert.Equal(t, freeDecision, d)
	assert.Empty(t, f.activity.actions())
}

func TestConvertSuccessFreeTier(t *testing.T) {
	f := newFixture(t)
	f.quota.On("Record", mock.Anything, "anon").Return(nil).Once()
	f.quota.On("CheckLimit", mock.Anything, "anon").Return(quotadomain.Decision{Allowed: true, Remaining: 2}, nil).Once()

	res, err := f.svc.Convert(t.Context(), domain.Request{
		PrincipalID: "anon",
		Decision:    freeDecision,
		Upload:      upload("My Song.wav", []byte("RIFF")),
	})
	require.NoError(t, err)

	assert.Equal(t, "talechto_My Song.mp3", res.Filename)
	assert.Equal(t, "audio/mp3", res.ContentType)
	assert.Equal(t, "mp3:RIFF", string(res.Body))
	assert.Equal(t, 2, res.RemainingCredits)
	assert.Equal(t, []activitydomain.Action{
		activitydomain.ActionConversionStart,
		activitydomain.ActionConversionSuccess,
	}, f.activity.actions())
	f.quota.AssertExpectations(t)
	f.assertWorkdirEmpty(t)
}

func TestConvertReportsCreditsLeftAfterOverlappingConversions(t *testing.T) {
	f := newFixture(t)
	f.quota.On("Record", mock.Anything, "anon").Return(nil)
	// Two other conversions finished between admission and this one.
	f.quota.On("CheckLimit", mock.Anything, "anon").Return(quotadomain.Decision{Allowed: false, Remaining: 0}, nil).Once()

	res, err := f.svc.Convert(t.Context(), domain.Request{
		PrincipalID: "anon",
		Decision:    freeDecision,
		Upload:      upload("a.wav", []byte("RIFF")),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.RemainingCredits)

	f.quota.On("CheckLimit", mock.Anything, "anon").Return(quotadomain.Decision{}, errors.New("db down")).Once()
	res, err = f.svc.Convert(t.Context(), domain.Request{
		PrincipalID: "anon",
		Decision:    freeDecision,
		Upload:      upload("b.wav", []byte("RIFF")),
	})
	require.NoError(t, err)
	assert.Equal(t, freeDecision.AfterConversion(), res.RemainingCredits)
	f.quota.AssertExpectations(t)
}

func TestConvertSuccessPremiumKeepsName(t *testing.T) {
	f := newFixture(t)
	f.quota.On("Record", mock.Anything, "p1").Return(nil)

	res, err := f.svc.Convert(t.Context(), domain.Request{
		PrincipalID: "p1",
		Decision:    quotadomain.Decision{Allowed: true, Remaining: 999, Unlimited: true},
		Format:      "FLAC",
		Upload:      upload("take.1.wav", []byte("x")),
	})
	require.NoError(t, err)
	assert.Equal(t, "take.1.flac", res.Filename)
	assert.Equal(t, "audio/flac", res.ContentType)
	assert.Equal(t, 999, res.RemainingCredits)
}

func TestConvertConverterFailureCleansUp(t *testing.T) {
	f := newFixture(t)
	f.converter.fail = errors.New("exit status 1")

	_, err := f.svc.Convert(t.Context(), domain.Request{
		PrincipalID: "anon",
		Decision:    freeDecision,
		Format:      "ogg",
		Upload:      upload("a.wav", []byte("RIFF")),
	})
	assert.ErrorIs(t, err, domain.ErrConversionFailed)
	assert.Equal(t, []activitydomain.Action{
		activitydomain.ActionConversionStart,
		activitydomain.ActionConversionError,
	}, f.activity.actions())
	f.quota.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
	f.assertWorkdirEmpty(t)
}

func TestConvertRecordFailureIsConversionError(t *testing.T) {
	f := newFixture(t)
	f.quota.On("Record", mock.Anything, "anon").Return(errors.New("db down"))

	_, err := f.svc.Convert(t.Context(), domain.Request{
		PrincipalID: "anon",
		Decision:    freeDecision,
		Upload:      upload("a.wav", []byte("RIFF")),
	})
	assert.ErrorIs(t, err, domain.ErrConversionFailed)
	assert.Contains(t, f.activity.actions(), activitydomain.ActionConversionError)
	f.assertWorkdirEmpty(t)
}

func TestConvertSizeBoundary(t *testing.T) {
	limit := config.DefaultConversionPolicy().MaxUploadBytes

	t.Run("at limit is accepted", func(t *testing.T) {
		f := newFixture(t)
		f.quota.On("Record", mock.Anything, "anon").Return(nil)
		f.quota.On("CheckLimit", mock.Anything, "anon").Return(quotadomain.Decision{Allowed: true, Remaining: 2}, nil)
		_, err := f.svc.Convert(t.Context(), domain.Request{PrincipalID: "anon", Decision: freeDecision, Upload: sized("a.wav", limit)})
		require.NoError(t, err)
	})

	t.Run("one byte over is rejected", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Convert(t.Context(), domain.Request{PrincipalID: "anon", Decision: freeDecision, Upload: sized("a.wav", limit+1)})
		require.ErrorIs(t, err, domain.ErrFileTooLarge)

		var tooLarge *domain.FileTooLargeError
		require.ErrorAs(t, err, &tooLarge)
		assert.Equal(t, "File too large (50.00 MB). Free tier limit is 50 MB", tooLarge.Error())
		assert.Equal(t, []activitydomain.Action{activitydomain.ActionSizeExceeded}, f.activity.actions())
		assert.Zero(t, f.converter.calls)
		f.assertWorkdirEmpty(t)
	})

	t.Run("premium is exempt", func(t *testing.T) {
		f := newFixture(t)
		f.quota.On("Record", mock.Anything, "p1").Return(nil)
		_, err := f.svc.Convert(t.Context(), domain.Request{
			PrincipalID: "p1",
			Decision:    quotadomain.Decision{Allowed: true, Remaining: 999, Unlimited: true},
			Upload:      sized("a.wav", 3*limit),
		})
		require.NoError(t, err)
	})
}

func TestConvertUnsupportedFormatWritesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Convert(t.Context(), domain.Request{
		PrincipalID: "anon",
		Decision:    freeDecision,
		Format:      "../../etc/x",
		Upload:      upload("a.wav", []byte("RIFF")),
	})
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	assert.Equal(t, []activitydomain.Action{activitydomain.ActionConversionError}, f.activity.actions())
	assert.Zero(t, f.converter.calls)
	f.assertWorkdirEmpty(t)
}

func TestConvertMissingFile(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Convert(t.Context(), domain.Request{PrincipalID: "anon", Decision: freeDecision})
	assert.ErrorIs(t, err, domain.ErrMissingFile)
}

func TestConvertArtifactsAreScopedToWorkdir(t *testing.T) {
	f := newFixture(t)
	f.quota.On("Record", mock.Anything, "anon").Return(nil)
	f.quota.On("CheckLimit", mock.Anything, "anon").Return(quotadomain.Decision{Allowed: true, Remaining: 2}, nil)

	_, err := f.svc.Convert(t.Context(), domain.Request{
		PrincipalID: "anon",
		Decision:    freeDecision,
		Upload:      upload("../../escape.wav", []byte("RIFF")),
	})
	require.NoError(t, err)
	require.Len(t, f.converter.seen, 2)
	for _, p := range f.converter.seen {
		assert.Equal(t, f.dir, filepath.Dir(p))
	}
}

func TestOutputFilename(t *testing.T) {
	cases := []struct {
		name     string
		uploaded string
		premium  bool
		want     string
	}{
		{"free prefix", "song.wav", false, "talechto_song.mp3"},
		{"premium plain", "song.wav", true, "song.mp3"},
		{"no extension", "song", false, "talechto_song.mp3"},
		{"dotfile", ".hidden", true, ".hidden.mp3"},
		{"quotes stripped", `a"b.wav`, true, "ab.mp3"},
		{"directories dropped", "dir/sub/x.ogg", true, "x.mp3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, OutputFilename(tc.uploaded, "mp3", tc.premium, "talechto_"))
		})
	}
}
