package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// IndexCount is the number of eligibility indexes the ledger assigns per oracle.
const IndexCount = 3

// StatusCode is the flight outcome reported by an oracle.
type StatusCode uint8

const (
	StatusUnknown       StatusCode = 0
	StatusOnTime        StatusCode = 10
	StatusLateAirline   StatusCode = 20
	StatusLateWeather   StatusCode = 30
	StatusLateTechnical StatusCode = 40
	StatusLateOther     StatusCode = 50
)

var statusNames = map[StatusCode]string{
	StatusUnknown:       "unknown",
	StatusOnTime:        "on-time",
	StatusLateAirline:   "late-airline",
	StatusLateWeather:   "late-weather",
	StatusLateTechnical: "late-technical",
	StatusLateOther:     "late-other",
}

// AllStatusCodes returns every status code the ledger understands, in ascending order.
func AllStatusCodes() []StatusCode {
	return []StatusCode{
		StatusUnknown,
		StatusOnTime,
		StatusLateAirline,
		StatusLateWeather,
		StatusLateTechnical,
		StatusLateOther,
	}
}

func (s StatusCode) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return fmt.Sprintf("status(%d)", uint8(s))
}

// Valid reports whether s is one of the enumerated codes.
func (s StatusCode) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// ParseStatusCode accepts either the numeric code ("20") or its name ("late-airline").
func ParseStatusCode(s string) (StatusCode, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		code := StatusCode(n)
		if !code.Valid() {
			return 0, fmt.Errorf("unknown status code: %d", n)
		}
		return code, nil
	}

	for code, name := range statusNames {
		if strings.EqualFold(name, s) {
			return code, nil
		}
	}

	return 0, fmt.Errorf("unknown status code: %q", s)
}

// StatusCodesFromInts converts configured integer codes, rejecting anything outside the enumeration.
func StatusCodesFromInts(values []int) ([]StatusCode, error) {
	codes := make([]StatusCode, 0, len(values))
	for _, v := range values {
		if v < 0 || v > 255 || !StatusCode(v).Valid() {
			return nil, fmt.Errorf("unknown status code: %d", v)
		}
		codes = append(codes, StatusCode(v))
	}

	return codes, nil
}

// Indexes is the ordered set of eligibility buckets assigned to an oracle at registration.
type Indexes [IndexCount]uint8

// Contains reports whether index is one of the oracle's buckets.
func (idx Indexes) Contains(index uint8) bool {
	for _, i := range idx {
		if i == index {
			return true
		}
	}

	return false
}

// InDomain reports whether every index is below buckets.
func (idx Indexes) InDomain(buckets uint8) bool {
	for _, i := range idx {
		if i >= buckets {
			return false
		}
	}

	return true
}

func (idx Indexes) String() string {
	return fmt.Sprintf("[%d,%d,%d]", idx[0], idx[1], idx[2])
}

// RegisteredOracle is an oracle account the ledger accepted, with the indexes it was assigned.
type RegisteredOracle struct {
	Address common.Address `json:"address"`
	Indexes Indexes        `json:"indexes"`
}

// StatusRequest is raised by the ledger through an OracleRequest event.
type StatusRequest struct {
	Index     uint8          `json:"index"`
	Airline   common.Address `json:"airline"`
	Flight    string         `json:"flight"`
	Timestamp uint64         `json:"timestamp"`
}

func (r StatusRequest) String() string {
	return fmt.Sprintf("index=%d airline=%s flight=%s timestamp=%d", r.Index, r.Airline.Hex(), r.Flight, r.Timestamp)
}

// StatusResponse is what a single oracle submits for a request.
type StatusResponse struct {
	Index      uint8          `json:"index"`
	Airline    common.Address `json:"airline"`
	Flight     string         `json:"flight"`
	Timestamp  uint64         `json:"timestamp"`
	StatusCode StatusCode     `json:"status_code"`
	Oracle     common.Address `json:"oracle"`
}

// NewStatusResponse answers req on behalf of oracle.
func NewStatusResponse(req StatusRequest, status StatusCode, oracle common.Address) StatusResponse {
	return StatusResponse{
		Index:      req.Index,
		Airline:    req.Airline,
		Flight:     req.Flight,
		Timestamp:  req.Timestamp,
		StatusCode: status,
		Oracle:     oracle,
	}
}

// FlightStatusInfo is emitted by the ledger once enough oracle responses agree.
type FlightStatusInfo struct {
	Airline   common.Address `json:"airline"`
	Flight    string         `json:"flight"`
	Timestamp uint64         `json:"timestamp"`
	Status    StatusCode     `json:"status"`
}

func (i FlightStatusInfo) String() string {
	return fmt.Sprintf("airline=%s flight=%s timestamp=%d status=%s", i.Airline.Hex(), i.Flight, i.Timestamp, i.Status)
}
