package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/fundwatch/internal/clients/eastmoney"
	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/models"
)

// newProvider fakes the upstream data endpoints.
func newProvider(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/js/161725.js":
			fmt.Fprint(w, `jsonpgz({"fundcode":"161725","name":"招商中证白酒指数","jzrq":"2024-03-07","dwjz":"1.0210","gsz":"1.0337","gszzl":"-0.80","gztime":"2024-03-08 10:00"});`)
		case r.URL.Path == "/js/000404.js":
			fmt.Fprint(w, `jsonpgz();`)
		case r.URL.Path == "/F10DataApi.aspx":
			fmt.Fprint(w, `var apidata={ content:"<table><tbody><tr><td>2024-03-08</td><td>1.0</td><td>2.0</td><td>0.75%</td></tr></tbody></table>",records:1};`)
		case strings.HasPrefix(r.URL.Path, "/FundSearch/"):
			fmt.Fprint(w, `{"ErrCode":0,"Datas":[{"CODE":"161725","NAME":"招商中证白酒指数","CATEGORYDESC":"指数型"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newHost serves the message endpoint backed by a direct client.
func newHost(t *testing.T, hooks Hooks) *httptest.Server {
	t.Helper()
	provider := newProvider(t)
	d := NewDispatcher(eastmoney.NewClient(eastmoney.WithBaseURL(provider.URL)), hooks, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != MessagePath || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(d.Handle(r.Context(), body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRelay_FetchEstimateRoundTrip(t *testing.T) {
	host := newHost(t, Hooks{})
	client := NewClient(host.URL)

	q, err := client.FetchEstimate(context.Background(), "161725")
	require.NoError(t, err)
	assert.Equal(t, -0.8, q.Percent)
	assert.Equal(t, models.KindEstimate, q.Kind)

	info, err := client.FetchInfo(context.Background(), "161725")
	require.NoError(t, err)
	assert.Equal(t, "招商中证白酒指数", info.Name)
}

func TestRelay_FetchRealRoundTrip(t *testing.T) {
	client := NewClient(newHost(t, Hooks{}).URL)

	q, err := client.FetchReal(context.Background(), "161725")
	require.NoError(t, err)
	assert.Equal(t, 0.75, q.Percent)
	assert.Equal(t, "2024-03-08", q.AsOfDate)
	assert.Equal(t, models.KindReal, q.Kind)
}

func TestRelay_SearchRoundTrip(t *testing.T) {
	client := NewClient(newHost(t, Hooks{}).URL)

	results, err := client.SearchFunds(context.Background(), "白酒")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "161725", results[0].Code)
}

func TestRelay_PreservesErrorKind(t *testing.T) {
	client := NewClient(newHost(t, Hooks{}).URL)

	_, err := client.FetchEstimate(context.Background(), "000404")
	assert.True(t, errors.Is(err, common.ErrMalformedResponse), "got %v", err)
}

func TestRelay_InvalidCodeShortCircuits(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")

	_, err := client.FetchEstimate(context.Background(), "")
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))
	_, err = client.FetchReal(context.Background(), "12")
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))
}

func TestRelay_HostWithoutKindIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error":"获取基金数据失败"}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).FetchEstimate(context.Background(), "161725")
	assert.True(t, errors.Is(err, common.ErrTransportFailure), "got %v", err)
	assert.Contains(t, err.Error(), "获取基金数据失败")
}

func TestDispatcher_Hooks(t *testing.T) {
	var badge models.Badge
	var updated bool
	d := NewDispatcher(eastmoney.NewClient(), Hooks{
		UpdateBadge:     func(b models.Badge) { badge = b },
		HoldingsUpdated: func() { updated = true },
	}, nil)

	resp := d.Handle(context.Background(), []byte(`{"type":"updateBadge","text":"1.2k","color":"#ef4444"}`))
	assert.True(t, resp.OK)
	assert.Equal(t, models.Badge{Text: "1.2k", Color: "#ef4444"}, badge)

	resp = d.Handle(context.Background(), []byte(`{"type":"holdingsUpdated"}`))
	assert.True(t, resp.OK)
	assert.True(t, updated)
}

func TestDispatcher_RejectsUnknownAndBadInput(t *testing.T) {
	d := NewDispatcher(eastmoney.NewClient(), Hooks{}, nil)

	resp := d.Handle(context.Background(), []byte(`{"type":"launchRocket"}`))
	assert.False(t, resp.OK)
	assert.Equal(t, "invalid_argument", resp.Kind)

	resp = d.Handle(context.Background(), []byte(`not json`))
	assert.False(t, resp.OK)

	resp = d.Handle(context.Background(), []byte(`{"type":"fetchFundJson","code":""}`))
	assert.False(t, resp.OK)
	assert.Equal(t, "invalid_argument", resp.Kind)
}

func TestDispatcher_MalformedBadgeIsRejected(t *testing.T) {
	called := false
	d := NewDispatcher(eastmoney.NewClient(), Hooks{
		UpdateBadge: func(models.Badge) { called = true },
	}, nil)

	resp := d.Handle(context.Background(), []byte(`{"type":"updateBadge","text":12,"color":true}`))
	assert.False(t, resp.OK)
	assert.Equal(t, "invalid_argument", resp.Kind)
	assert.False(t, called)
}
