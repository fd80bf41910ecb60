package events

// Well-known metadata keys.
const (
	MetaPhoneNumber     = "phoneNumber"
	MetaChannel         = "channel"
	MetaStatus          = "status"
	MetaVerificationSID = "verificationSid"
	MetaSynthetic       = "synthetic"
	MetaSource          = "source"
	MetaDescription     = "description"
)

// Metadata values.
const (
	ChannelSMS   = "sms"
	ChannelVoice = "voice"

	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDenied   = "denied"

	SourceFrontend = "frontend"
	SourceBackend  = "backend"
)

// Metadata is the open key/value bag attached to an event.
type Metadata map[string]any

func (m Metadata) str(key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// PhoneNumber returns the phoneNumber key.
func (m Metadata) PhoneNumber() string { return m.str(MetaPhoneNumber) }

// Channel returns the channel key (sms or voice).
func (m Metadata) Channel() string { return m.str(MetaChannel) }

// Status returns the verification status key.
func (m Metadata) Status() string { return m.str(MetaStatus) }

// VerificationSID returns the verificationSid key.
func (m Metadata) VerificationSID() string { return m.str(MetaVerificationSID) }

// Source returns the source key (frontend or backend).
func (m Metadata) Source() string { return m.str(MetaSource) }

// Description returns the description key.
func (m Metadata) Description() string { return m.str(MetaDescription) }

// Synthetic reports whether the event was generated client-side.
func (m Metadata) Synthetic() bool {
	if m == nil {
		return false
	}
	b, _ := m[MetaSynthetic].(bool)
	return b
}

// Clone returns a shallow copy of m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
