package followup

import (
	"strings"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	directoryx "github.com/tanpawarit/pharmacy-concierge/agent/directory"
	statex "github.com/tanpawarit/pharmacy-concierge/agent/state"
)

const (
	TemplateWelcomeEmail     = "welcome_email"
	TemplateLeadNotification = "lead_notification"

	DefaultCallbackWindow = "tomorrow between 9 AM - 5 PM EST"

	notProvided = "Not provided"
)

// Payload keys shared by every action.
const (
	PayloadAddress    = "address"
	PayloadTemplate   = "template"
	PayloadPhone      = "phone"
	PayloadWindow     = "window"
	PayloadCustomerID = "customer_id"
)

// contactFields is any one of these being known makes an abandoned caller
// worth a callback.
var contactFields = []string{"contact_person", "pharmacy_name", "email", "preferred_contact"}

type Config struct {
	CompanyName           string
	LeadsEmail            string
	DefaultCallbackWindow string
}

func (c Config) leadsInbox() string {
	if v := strings.TrimSpace(c.LeadsEmail); v != "" {
		return v
	}
	name := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(c.CompanyName), " ", ""))
	if name == "" {
		name = "pharmesol"
	}
	return "leads@" + name + ".com"
}

func (c Config) callbackWindow(s *statex.Session) string {
	if v := s.Field("preferred_time"); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.DefaultCallbackWindow); v != "" {
		return v
	}
	return DefaultCallbackWindow
}

// Select decides which actions a completed session warrants:
//   - qualified: confirmation email and CRM update
//   - abandoned with some contact info: callback
//   - otherwise nothing
func Select(cfg Config, s *statex.Session) []contractx.FollowUpAction {
	if s == nil {
		return nil
	}
	switch s.Outcome {
	case statex.StatusQualified:
		return []contractx.FollowUpAction{emailAction(cfg, s), crmAction(s)}
	case statex.StatusAbandoned:
		if hasContactInfo(s) {
			return []contractx.FollowUpAction{callbackAction(cfg, s)}
		}
	}
	return nil
}

func hasContactInfo(s *statex.Session) bool {
	if s.Customer != nil {
		return true
	}
	for _, f := range contactFields {
		if s.Field(f) != "" {
			return true
		}
	}
	return false
}

func emailAction(cfg Config, s *statex.Session) contractx.FollowUpAction {
	if s.Customer != nil && s.Customer.Meta(directoryx.MetaEmail) != "" {
		return contractx.FollowUpAction{Kind: contractx.ActionEmail, Payload: welcomeEmail(cfg, s)}
	}
	return contractx.FollowUpAction{Kind: contractx.ActionEmail, Payload: leadNotification(cfg, s)}
}

func welcomeEmail(cfg Config, s *statex.Session) map[string]string {
	c := s.Customer
	volumeMessage := "We're excited to help you grow your prescription volume."
	if c.Meta(directoryx.MetaHighVolume) == "true" {
		volumeMessage = "As a high-volume pharmacy, you're exactly who we love working with!"
	}
	return map[string]string{
		PayloadAddress:    c.Meta(directoryx.MetaEmail),
		PayloadTemplate:   TemplateWelcomeEmail,
		"pharmacy_name":   c.PharmacyName,
		"company_name":    cfg.CompanyName,
		"location":        orDefault(c.Meta(directoryx.MetaLocation), "your area"),
		"total_rx_volume": orDefault(c.Meta(directoryx.MetaTotalRxVolume), "0"),
		"volume_message":  volumeMessage,
		"request":         s.Field("request"),
	}
}

func leadNotification(cfg Config, s *statex.Session) map[string]string {
	pharmacyName := s.Field("pharmacy_name")
	if s.Customer != nil && pharmacyName == "" {
		pharmacyName = s.Customer.PharmacyName
	}

	city := orDefault(s.Field("city"), "Unknown")
	state := orDefault(s.Field("state"), "Unknown")
	location := city + ", " + state
	if s.Customer != nil && s.Field("city") == "" && s.Customer.Meta(directoryx.MetaLocation) != "" {
		location = s.Customer.Meta(directoryx.MetaLocation)
	}

	followUpNeeded := "No"
	if s.Outcome != statex.StatusQualified {
		followUpNeeded = "Yes - missing information"
	}

	return map[string]string{
		PayloadAddress:        cfg.leadsInbox(),
		PayloadTemplate:       TemplateLeadNotification,
		"pharmacy_name":       orDefault(pharmacyName, notProvided),
		"contact_person":      orDefault(s.Field("contact_person"), notProvided),
		"phone":               s.Phone,
		"location":            location,
		"estimated_rx_volume": orDefault(s.Field("estimated_rx_volume"), notProvided),
		"preferred_contact":   orDefault(s.Field("preferred_contact"), "Not specified"),
		"follow_up_needed":    followUpNeeded,
		"request":             s.Field("request"),
	}
}

func crmAction(s *statex.Session) contractx.FollowUpAction {
	payload := make(map[string]string, len(s.ExtractedFields)+4)
	for k, v := range s.ExtractedFields {
		payload[k] = v
	}
	payload[PayloadCustomerID] = CustomerID(s)
	payload[PayloadPhone] = s.Phone
	payload["status"] = string(s.Outcome)
	payload["session_id"] = s.ID
	if s.Customer != nil && payload["pharmacy_name"] == "" {
		payload["pharmacy_name"] = s.Customer.PharmacyName
	}
	return contractx.FollowUpAction{Kind: contractx.ActionCRMUpdate, Payload: payload}
}

func callbackAction(cfg Config, s *statex.Session) contractx.FollowUpAction {
	return contractx.FollowUpAction{Kind: contractx.ActionCallback, Payload: map[string]string{
		PayloadPhone:  s.Phone,
		PayloadWindow: cfg.callbackWindow(s),
	}}
}

// CustomerID is the directory id for known customers and a phone-derived
// lead id otherwise.
func CustomerID(s *statex.Session) string {
	if s.Customer != nil {
		if id := s.Customer.Meta(directoryx.MetaID); id != "" {
			return id
		}
	}
	return "lead:" + directoryx.NormalizePhone(s.Phone)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
