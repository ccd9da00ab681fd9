package clients

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chargebook/backend/services/booking-gateway/internal/apperr"
	"chargebook/backend/services/booking-gateway/internal/models"
	"chargebook/backend/services/booking-gateway/internal/requestid"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	reqID  string
	body   map[string]interface{}
}

func newBackend(t *testing.T, status int, response string) (*BackendClient, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			auth:   r.Header.Get("Authorization"),
			reqID:  r.Header.Get(requestid.Header),
		}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.body)
		}
		calls = append(calls, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	c, err := NewBackendClient(srv.URL+"/api/", srv.Client())
	require.NoError(t, err)
	return c, &calls
}

func TestLoginMapsResponse(t *testing.T) {
	c, calls := newBackend(t, http.StatusOK, `{"success":true,"data":{"token":"tok","role":"Station_Operator","username":"op1","expiresAt":"2026-05-01T10:00:00Z"}}`)

	res, err := c.Login(context.Background(), "op1", "secret")
	require.NoError(t, err)
	require.Equal(t, "tok", res.Token)
	require.Equal(t, "Station_Operator", res.Role)
	require.Equal(t, "op1", res.SubjectID)
	require.Equal(t, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), res.ExpiresAt)

	require.Len(t, *calls, 1)
	got := (*calls)[0]
	require.Equal(t, "/api/auth/login", got.path)
	require.Empty(t, got.auth)
	require.NotEmpty(t, got.reqID)
	require.Equal(t, "op1", got.body["username"])
}

func TestPrivilegedCallWithoutTokenIsNotSent(t *testing.T) {
	c, calls := newBackend(t, http.StatusOK, `{"success":true}`)

	_, err := c.ListPending(context.Background(), "")
	require.ErrorIs(t, err, apperr.Unauthenticated)
	require.Empty(t, *calls)
}

func TestCreateReservationSendsBookingBody(t *testing.T) {
	c, calls := newBackend(t, http.StatusOK, `{"success":true,"data":{"bookingId":"b-1","evOwnerNic":"NIC1","stationId":"st-1","slotNumber":2,"reservationDateTime":"2026-05-01T22:00:00","duration":2,"status":"pending"}}`)

	start := time.Date(2026, 5, 1, 22, 0, 0, 0, time.UTC)
	r, err := c.CreateReservation(context.Background(), "tok", CreateReservationInput{
		OwnerID: "NIC1", StationID: "st-1", SlotNumber: 2, StartTime: start, DurationHours: 2,
	})
	require.NoError(t, err)
	require.Equal(t, "b-1", r.ID)
	require.Equal(t, "NIC1", r.OwnerID)
	require.Equal(t, models.StatusPending, r.Status)
	require.True(t, start.Equal(r.StartTime))

	got := (*calls)[0]
	require.Equal(t, http.MethodPost, got.method)
	require.Equal(t, "/api/booking", got.path)
	require.Equal(t, "Bearer tok", got.auth)
	require.Equal(t, "st-1", got.body["StationId"])
	require.Equal(t, "2026-05-01T22:00:00Z", got.body["ReservationDateTime"])
	require.EqualValues(t, 2, got.body["Duration"])
}

func TestListUpcomingUsesNicQuery(t *testing.T) {
	c, calls := newBackend(t, http.StatusOK, `{"success":true,"data":[{"id":"r1","stationId":"s","startTime":"2026-05-01T10:00:00Z","status":"APPROVED","approvedAt":"2026-04-30T10:00:00Z"}]}`)

	list, err := c.ListUpcoming(context.Background(), "tok", "NIC 1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].ApprovedAt)
	require.Equal(t, "/api/booking/upcoming", (*calls)[0].path)
	require.Equal(t, "nic=NIC+1", (*calls)[0].query)
}

func TestOperatorStationsMapsSlots(t *testing.T) {
	c, _ := newBackend(t, http.StatusOK, `{"success":true,"data":[{"stationId":"st-1","name":"Harbour","latitude":6.9,"longitude":79.8,"operatorId":"op1","slots":[{"slotNumber":1,"isAvailable":true,"powerRating":22,"connectorType":"Type 2"},{"slotNumber":2,"isAvailable":false,"powerRating":50,"connectorType":"CCS2"}]}]}`)

	stations, err := c.GetOperatorStations(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, stations, 1)
	st := stations[0]
	require.Equal(t, "st-1", st.ID)
	require.Equal(t, "op1", st.OperatorID)
	require.Equal(t, models.ConnectorType2, st.Slots[0].ConnectorType)
	require.Equal(t, models.ConnectorCCS, st.Slots[1].ConnectorType)
	require.Equal(t, "st-1", st.Slots[1].StationID)
	require.Equal(t, 1, st.AvailableSlots())
}

func TestSetSlotAvailabilityPath(t *testing.T) {
	c, calls := newBackend(t, http.StatusOK, `{"success":true}`)

	require.NoError(t, c.SetSlotAvailability(context.Background(), "tok", "st-1", 3, false))
	got := (*calls)[0]
	require.Equal(t, http.MethodPatch, got.method)
	require.Equal(t, "/api/station/st-1/slots/3/availability", got.path)
	require.Equal(t, false, got.body["IsAvailable"])
}

func TestCancelAcknowledgementWithoutData(t *testing.T) {
	c, calls := newBackend(t, http.StatusOK, `{"success":true,"message":"cancelled"}`)

	r, err := c.CancelReservation(context.Background(), "tok", "r-1")
	require.NoError(t, err)
	require.Nil(t, r)
	require.Equal(t, http.MethodDelete, (*calls)[0].method)
	require.Equal(t, "r-1", (*calls)[0].body["reservationId"])
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   apperr.Kind
	}{
		{http.StatusUnauthorized, `{"success":false}`, apperr.Unauthenticated},
		{http.StatusForbidden, `{"success":false}`, apperr.Forbidden},
		{http.StatusNotFound, `{"success":false,"message":"Booking not found"}`, apperr.NotFound},
		{http.StatusConflict, `{"success":false}`, apperr.Conflict},
		{http.StatusBadRequest, `{"success":false,"message":"Cannot cancel within 12 hours"}`, apperr.InvalidTimeWindow},
		{http.StatusBadRequest, `{"success":false,"message":"Booking already completed"}`, apperr.InvalidState},
		{http.StatusBadRequest, `{"success":false,"message":"Something odd"}`, apperr.Unknown},
		{http.StatusOK, `{"success":false,"message":"Booking status does not allow approval"}`, apperr.InvalidState},
		{http.StatusServiceUnavailable, ``, apperr.NetworkError},
		{http.StatusInternalServerError, `oops`, apperr.Unknown},
	}
	for _, tc := range cases {
		c, _ := newBackend(t, tc.status, tc.body)
		_, err := c.ApproveBooking(context.Background(), "tok", "r-1", "op1")
		require.Equal(t, tc.want, apperr.KindOf(err), "status %d body %s", tc.status, tc.body)
	}
}

func TestBackendMessageIsPassedThrough(t *testing.T) {
	c, _ := newBackend(t, http.StatusNotFound, `{"success":false,"message":"Booking not found"}`)
	_, err := c.GetReservation(context.Background(), "tok", "r-1")
	require.Equal(t, "Booking not found", apperr.UserMessage(err))
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := NewBackendClient(srv.URL, NewDefaultHTTPClient(time.Second))
	require.NoError(t, err)
	_, err = c.ListPending(context.Background(), "tok")
	require.ErrorIs(t, err, apperr.NetworkError)
	require.True(t, apperr.Retryable(err))
}

func TestRequestIDIsPropagated(t *testing.T) {
	c, calls := newBackend(t, http.StatusOK, `{"success":true,"data":[]}`)
	ctx := requestid.WithContext(context.Background(), "req-42")

	_, err := c.ListPending(ctx, "tok")
	require.NoError(t, err)
	require.Equal(t, "req-42", (*calls)[0].reqID)
}

func TestGetStationEmptyIsNotFound(t *testing.T) {
	c, _ := newBackend(t, http.StatusOK, `{"success":true,"data":null}`)
	_, err := c.GetStation(context.Background(), "tok", "st-9")
	require.ErrorIs(t, err, apperr.NotFound)
}

func TestNewBackendClientRejectsRelativeURL(t *testing.T) {
	_, err := NewBackendClient("backend:8080/api", http.DefaultClient)
	require.Error(t, err)
}
