package web

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/MoneyMiii/tennis-booking/internal/lifecycle"
)

type slotRequest struct {
	Date      *string `json:"date"`
	StartTime *int    `json:"start_time"`
	EndTime   *int    `json:"end_time"`
	Type      *string `json:"type"`
}

func (r slotRequest) toRequest() (lifecycle.Request, error) {
	switch {
	case r.Date == nil:
		return lifecycle.Request{}, missing("date")
	case r.StartTime == nil:
		return lifecycle.Request{}, missing("start_time")
	case r.EndTime == nil:
		return lifecycle.Request{}, missing("end_time")
	case r.Type == nil:
		return lifecycle.Request{}, missing("type")
	}
	return lifecycle.Request{Date: *r.Date, StartTime: *r.StartTime, EndTime: *r.EndTime, Type: *r.Type}, nil
}

func (s *Server) createSlot(c echo.Context) error {
	var body slotRequest
	if err := bind(c, &body); err != nil {
		return err
	}
	req, err := body.toRequest()
	if err != nil {
		return err
	}
	res, err := s.Slots.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}

	env := envelope{IsSuccess: res.Success, Message: res.Message}
	if res.Slot != nil {
		env.Data = res.Slot
	}
	status := http.StatusOK
	if res.Success && res.Slot != nil {
		status = http.StatusCreated
	}
	return c.JSON(status, env)
}

func (s *Server) listSlots(c echo.Context) error {
	all, err := s.Slots.List(c.Request().Context())
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "slots", all)
}

func (s *Server) deleteSlot(c echo.Context) error {
	if err := s.Slots.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return ok(c, http.StatusOK, "slot deleted", nil)
}
