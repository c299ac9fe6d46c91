package encounter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/encounter"
	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/internal/platform/auth"
)

func post(ctx context.Context, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func TestHandler_SaveAndHistory(t *testing.T) {
	f := newFixture(t)
	h := encounter.NewHandler(f.svc)
	entry := f.inConsultation(t)
	ctx := auth.WithIdentity(context.Background(), f.doctor.String(), []string{auth.RoleDoctor})

	c, rec := post(ctx, `{"queueEntryId":"`+entry.ID.String()+`","diagnosis":"conjunctivitis",
		"exam":{"od_visual_acuity":"6/6","refraction":null},"amount":900,"paymentMethod":"card"}`)
	require.NoError(t, h.Save(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var saved encounter.Saved
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, billing.StatusPaid, saved.Bill.Status)
	assert.Equal(t, queue.StatusDone, f.qrepo.Entry(entry.ID).Status)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	c = echo.New().NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(entry.PatientID.String())
	require.NoError(t, h.History(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "conjunctivitis", body[0]["diagnosis"])
	exam := body[0]["exam"].(map[string]interface{})
	assert.Equal(t, "eye", exam["department"])
	assert.Equal(t, "6/6", exam["fields"].(map[string]interface{})["od_visual_acuity"])
	assert.NotNil(t, body[0]["bill"])
}

func TestHandler_SaveErrors(t *testing.T) {
	f := newFixture(t)
	h := encounter.NewHandler(f.svc)
	entry := f.inConsultation(t)

	c, _ := post(context.Background(), `{"queueEntryId":"`+entry.ID.String()+`","diagnosis":"x","paymentMethod":"iou"}`)
	he, ok := h.Save(c).(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)

	c, _ = post(context.Background(), `{"queueEntryId":"`+entry.ID.String()+`","diagnosis":""}`)
	he, ok = h.Save(c).(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)

	c, _ = post(context.Background(), `{"diagnosis":"x"}`)
	he, ok = h.Save(c).(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestHandler_AmendNeedsIdentity(t *testing.T) {
	f := newFixture(t)
	h := encounter.NewHandler(f.svc)
	c, _ := post(context.Background(), `{"diagnosis":"x"}`)
	c.SetParamNames("id")
	c.SetParamValues(f.doctor.String())
	he, ok := h.Amend(c).(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, he.Code)
}
