package upstream

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jaehyunpark/clockproxy/internal/models"
	"github.com/jaehyunpark/clockproxy/internal/timeslot"
)

// ErrMissingServiceKey is returned before any network call when no public-data
// service key is configured.
var ErrMissingServiceKey = errors.New("public data service key is missing")

const (
	defaultKMABase = "http://apis.data.go.kr/1360000/VilageFcstInfoService_2.0"
	defaultAirBase = "http://apis.data.go.kr/B552584/ArpltnInforInqireSvc"
)

// Endpoints builds the upstream request URLs for each source. Base URLs are
// overridable so tests can point at a local server.
type Endpoints struct {
	KMABase    string
	AirBase    string
	ServiceKey string
	NX         string
	NY         string
	Station    string
}

// NewEndpoints returns an Endpoints with production base URLs. serviceKey may
// arrive percent-encoded from the data.go.kr portal; it is decoded once here
// so url.Values does not double-encode it.
func NewEndpoints(serviceKey, nx, ny, station string) *Endpoints {
	if decoded, err := url.QueryUnescape(serviceKey); err == nil {
		serviceKey = decoded
	}
	return &Endpoints{
		KMABase:    defaultKMABase,
		AirBase:    defaultAirBase,
		ServiceKey: serviceKey,
		NX:         nx,
		NY:         ny,
		Station:    station,
	}
}

// URL resolves the request URL for a source at the given time.
func (e *Endpoints) URL(source models.Source, now time.Time) (string, error) {
	if e.ServiceKey == "" {
		return "", ErrMissingServiceKey
	}

	switch source {
	case models.SourceObservation:
		return e.kmaURL("/getUltraSrtNcst", "10", timeslot.Observation(now)), nil
	case models.SourceShortForecast:
		return e.kmaURL("/getUltraSrtFcst", "60", timeslot.ShortForecast(now)), nil
	case models.SourceDailyForecast:
		return e.kmaURL("/getVilageFcst", "1000", timeslot.DailyForecast(now)), nil
	case models.SourcePollution:
		return e.pollutionURL(), nil
	default:
		return "", fmt.Errorf("unknown source %q", source)
	}
}

func (e *Endpoints) kmaURL(path, numOfRows string, w timeslot.Window) string {
	params := url.Values{}
	params.Set("serviceKey", e.ServiceKey)
	params.Set("dataType", "JSON")
	params.Set("numOfRows", numOfRows)
	params.Set("pageNo", "1")
	params.Set("base_date", w.Date)
	params.Set("base_time", w.Time)
	params.Set("nx", e.NX)
	params.Set("ny", e.NY)
	return e.KMABase + path + "?" + params.Encode()
}

func (e *Endpoints) pollutionURL() string {
	params := url.Values{}
	params.Set("serviceKey", e.ServiceKey)
	params.Set("returnType", "json")
	params.Set("numOfRows", "1")
	params.Set("pageNo", "1")
	params.Set("stationName", e.Station)
	params.Set("dataTerm", "DAILY")
	params.Set("ver", "1.0")
	return e.AirBase + "/getMsrstnAcctoRltmMesureDnsty?" + params.Encode()
}
