package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	getOut     *ssm.GetParameterOutput
	getErr     error
	batchOut   *ssm.GetParametersOutput
	batchErr   error
	lastGetIn  *ssm.GetParameterInput
	lastBatch  *ssm.GetParametersInput
	batchCalls int
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.lastGetIn = in
	return f.getOut, f.getErr
}

func (f *fakeAPI) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.batchCalls++
	f.lastBatch = in
	return f.batchOut, f.batchErr
}

func strPtr(s string) *string { return &s }

func mustNew(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	c, err := New(api)
	require.NoError(t, err)
	return c
}

func TestGetParameter_HappyPath(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("p"), Value: strPtr(`{"token":"sk"}`), Type: types.ParameterTypeSecureString,
	}}}
	v, err := mustNew(t, api).GetParameter(context.Background(), " p ")
	require.NoError(t, err)
	require.Equal(t, `{"token":"sk"}`, v)
	require.Equal(t, "p", *api.lastGetIn.Name)
	require.True(t, *api.lastGetIn.WithDecryption)
}

func TestGetParameter_MissingValue(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p")}}}
	_, err := mustNew(t, api).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "missing value")
}

func TestGetParameter_NotFound(t *testing.T) {
	api := &fakeAPI{getErr: &types.ParameterNotFound{Message: strPtr("nope")}}
	_, err := mustNew(t, api).GetParameter(context.Background(), "/x/open-ai-token")
	require.ErrorIs(t, err, ErrNotFound)
	require.Contains(t, err.Error(), "/x/open-ai-token")
}

func TestGetParameter_ApiError(t *testing.T) {
	api := &fakeAPI{getErr: errors.New("boom")}
	_, err := mustNew(t, api).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "boom")
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "not initialized")
}

func TestGetParameter_EmptyName(t *testing.T) {
	_, err := mustNew(t, &fakeAPI{}).GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "required")
}

func TestGetParameters_HappyPath(t *testing.T) {
	api := &fakeAPI{batchOut: &ssm.GetParametersOutput{
		Parameters: []types.Parameter{
			{Name: strPtr("/p/config/openai_model"), Value: strPtr("gpt-4o-mini")},
			{Name: strPtr("/p/broken")},
		},
		InvalidParameters: []string{"/p/missing"},
	}}
	values, err := mustNew(t, api).GetParameters(context.Background(), "/p/config/openai_model", " ", "/p/missing")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"/p/config/openai_model": "gpt-4o-mini"}, values)
	require.Equal(t, []string{"/p/config/openai_model", "/p/missing"}, api.lastBatch.Names)
}

func TestGetParameters_NoNamesSkipsCall(t *testing.T) {
	api := &fakeAPI{}
	values, err := mustNew(t, api).GetParameters(context.Background(), " ")
	require.NoError(t, err)
	require.Empty(t, values)
	require.Zero(t, api.batchCalls)
}

func TestGetParameters_ApiError(t *testing.T) {
	api := &fakeAPI{batchErr: errors.New("throttled")}
	_, err := mustNew(t, api).GetParameters(context.Background(), "a")
	require.ErrorContains(t, err, "get parameters")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")
}
