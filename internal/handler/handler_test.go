package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/slot-booking/internal/config"
	"github.com/iliyamo/slot-booking/internal/database"
	"github.com/iliyamo/slot-booking/internal/logging"
	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/repository"
	"github.com/iliyamo/slot-booking/internal/service"
)

var monday = time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC)

type api struct {
	e     *echo.Echo
	query *service.QueryFacade
	gen   *service.SlotGenerator
}

func newAPI(t *testing.T) *api {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))

	hours := model.DefaultOperatingHours()
	require.NoError(t, hours.Validate())
	now := func() time.Time { return time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC) }
	log := logging.Discard()
	store := repository.NewStore(db, 5*time.Second, 3)

	holds := service.NewHoldManager(store, config.HoldConfig{DefaultTTL: 10 * time.Minute, MaxTTL: 30 * time.Minute}, log).WithClock(now)
	svc := service.NewReservationService(store, holds, hours, config.BookingConfig{
		EquipmentSurchargeCents: 1500, ReferencePrefix: "WB", ReferenceAttempts: 5,
	}, nil, log).WithClock(now)
	query := service.NewQueryFacade(store, hours)
	gen := service.NewSlotGenerator(store, hours, log).WithClock(now)

	e := echo.New()
	e.Validator = RequestValidator{}
	slots := NewSlotHandler(query, hours)
	slots.Now = now
	hh := NewHoldHandler(svc)
	bh := NewBookingHandler(query, svc)
	e.GET("/healthz", Health(db))
	e.GET("/v1/slots", slots.List)
	e.GET("/v1/calendar/week", slots.Week)
	e.GET("/v1/calendar/day/:date", slots.Day)
	e.POST("/v1/holds", hh.Reserve)
	e.PATCH("/v1/holds/:token", hh.Extend)
	e.DELETE("/v1/holds/:token", hh.Release)
	e.POST("/v1/holds/:token/confirm", hh.Confirm)
	e.GET("/v1/bookings/:reference", bh.Get)

	return &api{e: e, query: query, gen: gen}
}

func (a *api) do(t *testing.T, method, path string, body interface{}, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload string
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(t, err)
		payload = string(bs)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

func (a *api) available(t *testing.T, n int) []string {
	t.Helper()
	_, err := a.gen.Regenerate(context.Background(), monday, monday)
	require.NoError(t, err)
	day, err := a.query.Day(context.Background(), monday)
	require.NoError(t, err)
	var out []string
	for _, s := range day.Slots {
		if s.Status == model.SlotAvailable && len(out) < n {
			out = append(out, s.ID)
		}
	}
	require.Len(t, out, n)
	return out
}

func TestHoldAndConfirmFlow(t *testing.T) {
	a := newAPI(t)
	ids := a.available(t, 2)

	var hold model.Hold
	rec := a.do(t, http.MethodPost, "/v1/holds", echo.Map{"slot_ids": ids}, &hold)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, hold.Token)
	assert.ElementsMatch(t, ids, hold.SlotIDs)

	var conflict struct {
		Error       string   `json:"error"`
		Unavailable []string `json:"unavailable"`
	}
	rec = a.do(t, http.MethodPost, "/v1/holds", echo.Map{"slot_ids": ids[1:]}, &conflict)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, ids[1:], conflict.Unavailable)

	rec = a.do(t, http.MethodPost, "/v1/holds/"+hold.Token+"/confirm", echo.Map{"phone_number": "555"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "customer_name")

	var booking model.Booking
	rec = a.do(t, http.MethodPost, "/v1/holds/"+hold.Token+"/confirm", model.CustomerDetails{
		Name: "Ada", Phone: "555-0101", EquipmentRental: true,
	}, &booking)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Regexp(t, `^WB-2607-\d{4}$`, booking.Reference)
	assert.EqualValues(t, 2*3000+1500, booking.TotalPriceCents)

	var fetched model.Booking
	rec = a.do(t, http.MethodGet, "/v1/bookings/"+booking.Reference, nil, &fetched)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, booking.ID, fetched.ID)

	rec = a.do(t, http.MethodPost, "/v1/holds/"+hold.Token+"/confirm", model.CustomerDetails{Name: "Ada", Phone: "555"}, nil)
	assert.Equal(t, http.StatusGone, rec.Code)

	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/v1/bookings/WB-0000-0000", nil, nil).Code)
}

func TestExtendAndRelease(t *testing.T) {
	a := newAPI(t)
	ids := a.available(t, 1)

	var hold model.Hold
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/v1/holds", echo.Map{"slot_ids": ids, "ttl_seconds": 60}, &hold).Code)

	var extended model.Hold
	rec := a.do(t, http.MethodPatch, "/v1/holds/"+hold.Token, echo.Map{"ttl_seconds": 600}, &extended)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, extended.ExpiresAt.After(hold.ExpiresAt))

	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/v1/holds/"+hold.Token, nil, nil).Code)
	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/v1/holds/"+hold.Token, nil, nil).Code)
	assert.Equal(t, http.StatusGone, a.do(t, http.MethodPatch, "/v1/holds/"+hold.Token, echo.Map{}, nil).Code)

	// The slot is free again.
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/v1/holds", echo.Map{"slot_ids": ids}, nil).Code)
}

func TestReserveRejectsBadBodies(t *testing.T) {
	a := newAPI(t)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/v1/holds", echo.Map{"slot_ids": []string{}}, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/v1/holds", echo.Map{"slot_ids": "x"}, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/v1/holds", echo.Map{"slot_ids": []string{"a"}, "ttl_seconds": -5}, nil).Code)

	var conflict struct {
		Unavailable []string `json:"unavailable"`
	}
	rec := a.do(t, http.MethodPost, "/v1/holds", echo.Map{"slot_ids": []string{"missing"}}, &conflict)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, []string{"missing"}, conflict.Unavailable)
}

func TestCalendarViews(t *testing.T) {
	a := newAPI(t)
	a.available(t, 1)

	var day service.DaySlots
	rec := a.do(t, http.MethodGet, "/v1/calendar/day/2026-07-06", nil, &day)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-07-06", day.Date)
	assert.Equal(t, "monday", day.Weekday)
	assert.Len(t, day.Slots, 24)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/v1/calendar/day/06-07-2026", nil, nil).Code)

	var week struct {
		Days []service.DaySlots `json:"days"`
	}
	rec = a.do(t, http.MethodGet, "/v1/calendar/week?start=2026-07-06", nil, &week)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, week.Days, 7)
	assert.Len(t, week.Days[0].Slots, 24)
	assert.Empty(t, week.Days[1].Slots)

	var list struct {
		Slots []model.TimeSlot `json:"slots"`
	}
	rec = a.do(t, http.MethodGet, "/v1/slots?from=2026-07-06&to=2026-07-06", nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, list.Slots, 24)

	rec = a.do(t, http.MethodGet, "/v1/slots?from=2026-07-06T10:00:00Z&to=2026-07-06T11:00:00Z", nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, list.Slots, 2)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/v1/slots?from=yesterday", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/v1/slots?from=2026-07-07&to=2026-07-06T00:00:00Z", nil, nil).Code)
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAPIErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&service.SlotUnavailableError{SlotIDs: []string{"a"}}, http.StatusConflict},
		{service.ErrSlotUnavailable, http.StatusConflict},
		{service.ErrHoldExpired, http.StatusGone},
		{service.ErrCrossDateBooking, http.StatusUnprocessableEntity},
		{service.ErrReferenceGenerationFailed, http.StatusInternalServerError},
		{fmt.Errorf("confirm: %w", service.ErrPersistenceUnavailable), http.StatusServiceUnavailable},
		{service.ErrUnauthorized, http.StatusForbidden},
		{fmt.Errorf("%w: bad", service.ErrInvalidRequest), http.StatusBadRequest},
		{service.ErrBookingNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
		{echo.ErrMethodNotAllowed, http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		he := apiError(tc.err)
		assert.Equal(t, tc.want, he.Code, tc.err.Error())
	}

	he := apiError(errors.New("secret detail"))
	assert.Equal(t, echo.Map{"error": "internal server error"}, he.Message)
	assert.EqualError(t, he.Internal, "secret detail")
}

func TestParseInstant(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	got, err := parseInstant("from", "2026-07-06", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 7, 5, 22, 0, 0, 0, time.UTC)))

	got, err = parseInstant("from", "2026-07-06T10:00:00Z", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 7, 6, 10, 0, 0, 0, time.UTC)))

	_, err = parseInstant("from", "tomorrow", loc)
	assert.ErrorIs(t, err, service.ErrInvalidRequest)
	_, err = parseDate("date", "2026-13-01", loc)
	assert.ErrorIs(t, err, service.ErrInvalidRequest)
}
