package query

import (
	"strconv"

	"github.com/telhawk-systems/proximity-stack/sensor/internal/models"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/sensorerr"
)

// Query parameter names.
const (
	ParamSensorID  = "sensor_id"
	ParamStartTime = "start_time"
	ParamEndTime   = "end_time"
	ParamPage      = "page"
	ParamPageSize  = "page_size"
)

// Param is a raw caller-supplied value. Set distinguishes "?page=" from an
// absent parameter.
type Param struct {
	Value string
	Set   bool
}

// RawParams holds the unparsed query parameters.
type RawParams struct {
	SensorID  Param
	StartTime Param
	EndTime   Param
	Page      Param
	PageSize  Param
}

// Defaults configures pagination when the caller omits it.
type Defaults struct {
	// PageSize is used when page_size is absent.
	PageSize int
	// MaxPageSize rejects larger page_size values as a pagination error.
	// Zero, the default, leaves page_size unbounded.
	MaxPageSize int
}

// DefaultDefaults returns a page size of 20 with no upper bound.
func DefaultDefaults() Defaults {
	return Defaults{PageSize: 20}
}

// ParseFilter validates raw parameters into a QueryFilter. It never touches
// the store. Pagination input is checked first so a bad page is reported
// even when the filters are also invalid.
func ParseFilter(raw RawParams, defaults Defaults) (models.QueryFilter, error) {
	var q models.QueryFilter

	page, err := parsePageParam(raw.Page, ParamPage, 1)
	if err != nil {
		return q, err
	}
	pageSize, err := parsePageParam(raw.PageSize, ParamPageSize, defaults.PageSize)
	if err != nil {
		return q, err
	}
	if pageSize < 1 {
		return q, sensorerr.FieldError(sensorerr.KindPagination, ParamPageSize, "page_size must be at least 1")
	}
	if defaults.MaxPageSize > 0 && pageSize > defaults.MaxPageSize {
		return q, sensorerr.FieldError(sensorerr.KindPagination, ParamPageSize, "page_size must be at most %d", defaults.MaxPageSize)
	}
	q.Page = page
	q.PageSize = pageSize

	if raw.SensorID.Value != "" {
		id, err := strconv.ParseInt(raw.SensorID.Value, 10, 64)
		if err != nil {
			return q, sensorerr.FieldError(sensorerr.KindInvalidFilter, ParamSensorID, "%q is not an integer", raw.SensorID.Value)
		}
		q.SensorID = &id
	}

	// Both bounds or neither; a single bound is ignored.
	if raw.StartTime.Value != "" && raw.EndTime.Value != "" {
		start, err := models.ParseTimestamp(raw.StartTime.Value)
		if err != nil {
			return q, sensorerr.FieldError(sensorerr.KindInvalidFilter, ParamStartTime, "%v", err)
		}
		end, err := models.ParseTimestamp(raw.EndTime.Value)
		if err != nil {
			return q, sensorerr.FieldError(sensorerr.KindInvalidFilter, ParamEndTime, "%v", err)
		}
		q.TimeRange = &models.TimeRange{Start: start, End: end}
	}

	return q, nil
}

func parsePageParam(p Param, name string, def int) (int, error) {
	if !p.Set {
		return def, nil
	}
	n, err := strconv.Atoi(p.Value)
	if err != nil {
		return 0, sensorerr.FieldError(sensorerr.KindPagination, name, "invalid %s: %q is not an integer", name, p.Value)
	}
	return n, nil
}
