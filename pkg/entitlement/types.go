package entitlement

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// FeatureKey identifies a meterable capability defined in a plan.
// Any key present in a plan's feature map works; the constants below are the
// keys the marketplace currently meters.
type FeatureKey string

const (
	// FeatureAIQueries is the daily quota for AI legal-assistant messages.
	FeatureAIQueries FeatureKey = "ai_queries"
	// FeatureLawyerChats caps the number of distinct lawyers a client may
	// initiate conversations with.
	FeatureLawyerChats FeatureKey = "lawyer_chats"
)

// Day is a calendar day in the UTC reporting timezone, formatted YYYY-MM-DD.
// Usage counters are keyed by (user, feature, day).
type Day string

const dayLayout = "2006-01-02"

// DayOf returns the Day containing t, evaluated in UTC.
func DayOf(t time.Time) Day {
	return Day(t.UTC().Format(dayLayout))
}

// unlimitedMarker is the literal plan data uses for unrestricted features.
const unlimitedMarker = "unlimited"

// Limit describes a per-day allowance for a feature: either unlimited or a
// non-negative count. The zero value is a limit of zero, i.e. not entitled.
// Plan data stores limits loosely ("unlimited" or a number in string form);
// they are decoded into this form once at the store boundary via ParseLimit
// instead of being re-parsed on every check.
type Limit struct {
	Unlimited bool
	Count     int64
}

// Unlimited is the limit descriptor for unrestricted features.
var Unlimited = Limit{Unlimited: true}

// LimitOf returns a limit of n units per day.
func LimitOf(n int64) Limit {
	return Limit{Count: n}
}

// ParseLimit decodes the loose plan-data form of a limit: the literal
// "unlimited" or a non-negative integer. Anything else is ErrInvalidPlanConfig.
func ParseLimit(raw string) (Limit, error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, unlimitedMarker) {
		return Unlimited, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return Limit{}, errors.Join(ErrInvalidPlanConfig,
			fmt.Errorf("limit %q must be %q or a non-negative integer", raw, unlimitedMarker))
	}
	return LimitOf(n), nil
}

func (l Limit) String() string {
	if l.Unlimited {
		return unlimitedMarker
	}
	return strconv.FormatInt(l.Count, 10)
}

// MarshalJSON encodes the limit in its wire form: the string "unlimited" or a
// plain number.
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.Unlimited {
		return json.Marshal(unlimitedMarker)
	}
	return json.Marshal(l.Count)
}

// UnmarshalJSON accepts both the string and number forms.
func (l *Limit) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.Join(ErrInvalidPlanConfig, err)
	}
	switch x := v.(type) {
	case string:
		parsed, err := ParseLimit(x)
		if err != nil {
			return err
		}
		*l = parsed
		return nil
	case float64:
		if x < 0 || x != math.Trunc(x) {
			return errors.Join(ErrInvalidPlanConfig,
				fmt.Errorf("limit %v must be a non-negative integer", x))
		}
		*l = LimitOf(int64(x))
		return nil
	default:
		return errors.Join(ErrInvalidPlanConfig, fmt.Errorf("limit has unsupported type %T", v))
	}
}

// MarshalYAML mirrors the JSON wire form for file-defined catalogs.
func (l Limit) MarshalYAML() (any, error) {
	if l.Unlimited {
		return unlimitedMarker, nil
	}
	return l.Count, nil
}

func (l *Limit) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseLimit(node.Value)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Access is the result of a read-only feature check.
type Access struct {
	Allowed bool  `json:"allowed"`
	Limit   Limit `json:"limit"`
}

// UnlimitedRemaining marks remaining quota on unlimited plans.
// -1 keeps the field numeric for SQL and JSON consumers.
const UnlimitedRemaining int64 = -1

// Usage is the result of a metered consumption attempt.
type Usage struct {
	Allowed   bool  `json:"allowed"`
	Remaining int64 `json:"remaining"`
}

// ChatInitiation is the result of a lawyer-chat initiation check.
// Limit is UnlimitedRemaining when the plan places no cap. Existing is set
// when a conversation between the two participants already exists; such
// conversations may always continue regardless of the cap.
type ChatInitiation struct {
	Allowed   bool  `json:"allowed"`
	Limit     int64 `json:"limit"`
	Existing  bool  `json:"existing,omitempty"`
	Current   int64 `json:"current,omitempty"`
	Remaining int64 `json:"remaining,omitempty"`
}

// Relationship links a client and a lawyer with an open conversation.
// InitiatedBy records which participant opened it; only client-initiated
// conversations count toward the client's cap.
type Relationship struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	LawyerID    uuid.UUID
	InitiatedBy uuid.UUID
	CreatedAt   time.Time
}
