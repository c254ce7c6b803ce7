package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Quota is the resource quota carried by an rquota frame.
type Quota struct {
	Used int64 `json:"used"`
	Hard int64 `json:"hard"`
}

func (q Quota) String() string {
	return strconv.FormatInt(q.Used, 10) + "/" + strconv.FormatInt(q.Hard, 10)
}

// ParseQuota decodes an rquota message. Both fields must be present and
// non-negative.
func ParseQuota(message string) (Quota, error) {
	var raw struct {
		Used *int64 `json:"used"`
		Hard *int64 `json:"hard"`
	}
	if err := json.Unmarshal([]byte(message), &raw); err != nil {
		return Quota{}, fmt.Errorf("%w: %v", ErrMalformedQuota, err)
	}
	if raw.Used == nil || raw.Hard == nil {
		return Quota{}, fmt.Errorf("%w: used and hard are required", ErrMalformedQuota)
	}
	if *raw.Used < 0 || *raw.Hard < 0 {
		return Quota{}, fmt.Errorf("%w: negative value used=%d hard=%d", ErrMalformedQuota, *raw.Used, *raw.Hard)
	}
	return Quota{Used: *raw.Used, Hard: *raw.Hard}, nil
}

// QuotaFrame builds the rquota frame for q.
func QuotaFrame(q Quota) Frame {
	payload, _ := json.Marshal(q)
	return Frame{Action: ActionRQuota, Message: string(payload)}
}
