package domain

import (
	"github.com/goccy/go-json"
)

// Event-type families bound on the broker.
const (
	FamilyApplication = "application"
	FamilyPlacement   = "placement"
	FamilyJob         = "job"
	FamilyCandidate   = "candidate"
	FamilyRecruiter   = "recruiter"
	FamilyProposal    = "proposal"
)

// Families lists every event-type family the pipeline subscribes to.
var Families = []string{
	FamilyApplication,
	FamilyPlacement,
	FamilyJob,
	FamilyCandidate,
	FamilyRecruiter,
	FamilyProposal,
}

// Scope identifies the user and company a payload belongs to, for cache scoping.
type Scope struct {
	UserID    string
	CompanyID string
}

// Payload is the typed view of an event's data. Each known family has its own
// shape; anything else is carried as a GenericPayload.
type Payload interface {
	Family() string
	Scope() Scope
	RecruiterIDs() []string
}

// ApplicationPayload covers application.* events.
type ApplicationPayload struct {
	ApplicationID ID     `json:"application_id"`
	CandidateID   ID     `json:"candidate_id"`
	JobID         ID     `json:"job_id"`
	RecruiterID   ID     `json:"recruiter_id"`
	CompanyID     ID     `json:"company_id"`
	UserID        ID     `json:"user_id"`
	Status        string `json:"status"`
}

func (p *ApplicationPayload) Family() string { return FamilyApplication }
func (p *ApplicationPayload) Scope() Scope {
	return Scope{UserID: first(p.UserID, p.RecruiterID), CompanyID: string(p.CompanyID)}
}
func (p *ApplicationPayload) RecruiterIDs() []string { return ids(p.RecruiterID) }

// PlacementPayload covers placement.* events.
type PlacementPayload struct {
	PlacementID ID      `json:"placement_id"`
	CandidateID ID      `json:"candidate_id"`
	JobID       ID      `json:"job_id"`
	RecruiterID ID      `json:"recruiter_id"`
	CompanyID   ID      `json:"company_id"`
	UserID      ID      `json:"user_id"`
	FeeAmount   float64 `json:"fee_amount"`
	Status      string  `json:"status"`
}

func (p *PlacementPayload) Family() string { return FamilyPlacement }
func (p *PlacementPayload) Scope() Scope {
	return Scope{UserID: first(p.UserID, p.RecruiterID), CompanyID: string(p.CompanyID)}
}
func (p *PlacementPayload) RecruiterIDs() []string { return ids(p.RecruiterID) }

// JobPayload covers job.* events. A job may be shared with several recruiters.
type JobPayload struct {
	JobID       ID   `json:"job_id"`
	CompanyID   ID   `json:"company_id"`
	UserID      ID   `json:"user_id"`
	RecruiterID ID   `json:"recruiter_id"`
	SharedWith  []ID `json:"recruiter_ids"`
}

func (p *JobPayload) Family() string { return FamilyJob }
func (p *JobPayload) Scope() Scope {
	return Scope{UserID: string(p.UserID), CompanyID: string(p.CompanyID)}
}
func (p *JobPayload) RecruiterIDs() []string {
	return ids(append([]ID{p.RecruiterID}, p.SharedWith...)...)
}

// CandidatePayload covers candidate.* events.
type CandidatePayload struct {
	CandidateID ID `json:"candidate_id"`
	RecruiterID ID `json:"recruiter_id"`
	UserID      ID `json:"user_id"`
}

func (p *CandidatePayload) Family() string { return FamilyCandidate }
func (p *CandidatePayload) Scope() Scope {
	return Scope{UserID: first(p.UserID, p.RecruiterID)}
}
func (p *CandidatePayload) RecruiterIDs() []string { return ids(p.RecruiterID) }

// RecruiterPayload covers recruiter.* events.
type RecruiterPayload struct {
	RecruiterID ID `json:"recruiter_id"`
	CompanyID   ID `json:"company_id"`
	UserID      ID `json:"user_id"`
}

func (p *RecruiterPayload) Family() string { return FamilyRecruiter }
func (p *RecruiterPayload) Scope() Scope {
	return Scope{UserID: first(p.UserID, p.RecruiterID), CompanyID: string(p.CompanyID)}
}
func (p *RecruiterPayload) RecruiterIDs() []string { return ids(p.RecruiterID) }

// ProposalPayload covers proposal.* events.
type ProposalPayload struct {
	ProposalID  ID      `json:"proposal_id"`
	RecruiterID ID      `json:"recruiter_id"`
	CompanyID   ID      `json:"company_id"`
	UserID      ID      `json:"user_id"`
	Amount      float64 `json:"amount"`
	Status      string  `json:"status"`
}

func (p *ProposalPayload) Family() string { return FamilyProposal }
func (p *ProposalPayload) Scope() Scope {
	return Scope{UserID: first(p.UserID, p.RecruiterID), CompanyID: string(p.CompanyID)}
}
func (p *ProposalPayload) RecruiterIDs() []string { return ids(p.RecruiterID) }

// GenericPayload carries the data of event types with no registered shape.
type GenericPayload struct {
	EventFamily string
	Data        map[string]any
}

func (p *GenericPayload) Family() string { return p.EventFamily }
func (p *GenericPayload) Scope() Scope {
	company := IDString(p.Data["company_id"])
	if company == "" {
		company = IDString(p.Data["organization_id"])
	}
	return Scope{UserID: IDString(p.Data["user_id"]), CompanyID: company}
}
func (p *GenericPayload) RecruiterIDs() []string {
	var out []ID
	if id := IDString(p.Data["recruiter_id"]); id != "" {
		out = append(out, ID(id))
	}
	if list, ok := p.Data["recruiter_ids"].([]any); ok {
		for _, v := range list {
			out = append(out, ID(IDString(v)))
		}
	}
	return ids(out...)
}

var payloadRegistry = map[string]func() Payload{
	FamilyApplication: func() Payload { return &ApplicationPayload{} },
	FamilyPlacement:   func() Payload { return &PlacementPayload{} },
	FamilyJob:         func() Payload { return &JobPayload{} },
	FamilyCandidate:   func() Payload { return &CandidatePayload{} },
	FamilyRecruiter:   func() Payload { return &RecruiterPayload{} },
	FamilyProposal:    func() Payload { return &ProposalPayload{} },
}

// DecodePayload picks the registered shape for the event's family. Data that
// does not fit the typed shape falls back to a GenericPayload rather than
// failing the event.
func DecodePayload(eventType string, raw []byte, data map[string]any) Payload {
	family := EntityType(eventType)
	if ctor, ok := payloadRegistry[family]; ok && len(raw) > 0 {
		p := ctor()
		if err := json.Unmarshal(raw, p); err == nil {
			return p
		}
	}
	return &GenericPayload{EventFamily: family, Data: data}
}

func first(values ...ID) string {
	for _, v := range values {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

// ids drops empty values and duplicates, keeping order.
func ids(values ...ID) []string {
	var out []string
	seen := make(map[ID]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, string(v))
	}
	return out
}
