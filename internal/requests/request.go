package requests

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"civreg.org/internal/auth"
)

// Status is the lifecycle state of a citizen request.
type Status int

const (
	StatusPending Status = iota
	StatusApproved
	StatusRejected
)

var statusNames = map[Status]string{
	StatusPending:  "Pending",
	StatusApproved: "Approved",
	StatusRejected: "Rejected",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// ParseStatus accepts a status name, case-insensitively.
func ParseStatus(v string) (Status, error) {
	for s, name := range statusNames {
		if strings.EqualFold(strings.TrimSpace(v), name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown request status %q", auth.ErrInvalidInput, v)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MaxType is the highest request type code.
const MaxType = 9

// Request is a citizen's petition to the administration of their ward. Unit
// ids are copied from the citizen at submission.
type Request struct {
	ID          string     `json:"id"`
	CitizenID   string     `json:"citizenId"`
	Type        int        `json:"requestType"`
	Content     string     `json:"content"`
	Status      Status     `json:"status"`
	ProvinceID  *int       `json:"provinceId,omitempty"`
	DistrictID  *int       `json:"districtId,omitempty"`
	WardID      *int       `json:"wardId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ProcessedBy string     `json:"processedBy,omitempty"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

// Matches reports whether r sits inside the units of f. Requests carry no
// hamlet.
func (r *Request) Matches(f auth.ScopeFilter) bool {
	return f.MatchUnits(r.ProvinceID, r.DistrictID, r.WardID, nil)
}

// Criteria selects requests in a store.
type Criteria struct {
	Scope     auth.ScopeFilter
	// CitizenID limits results to one submitter when set.
	CitizenID string
	Status    *Status
}

// Match reports whether r satisfies every constraint in c.
func (c Criteria) Match(r *Request) bool {
	if c.CitizenID != "" && r.CitizenID != c.CitizenID {
		return false
	}
	if c.Status != nil && r.Status != *c.Status {
		return false
	}
	return r.Matches(c.Scope)
}

// Store persists requests. Implementations return auth.ErrNotFound for
// unknown ids.
type Store interface {
	FindRequest(ctx context.Context, id string) (*Request, error)
	CountRequests(ctx context.Context, c Criteria) (int, error)
	ListRequests(ctx context.Context, c Criteria, page auth.Page) ([]*Request, error)
	InsertRequest(ctx context.Context, r *Request) error
	// DecideRequest stores the final status of a pending request. It returns
	// auth.ErrConflict when the stored request is no longer pending.
	DecideRequest(ctx context.Context, r *Request) error
}
