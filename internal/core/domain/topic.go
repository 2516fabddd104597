package domain

// ScopeKind names one of the broadcast audiences the gateway addresses.
type ScopeKind string

const (
	ScopeGlobal   ScopeKind = "global"
	ScopeChannel  ScopeKind = "channel"
	ScopeView     ScopeKind = "view"
	ScopeIdentity ScopeKind = "identity"
)

// Topic is a pub/sub address: a scope kind plus the id it is keyed by.
// The global topic has an empty id and reaches every registered connection.
type Topic struct {
	Kind ScopeKind
	ID   string
}

func GlobalTopic() Topic { return Topic{Kind: ScopeGlobal} }

func ChannelTopic(channelID string) Topic {
	return Topic{Kind: ScopeChannel, ID: channelID}
}

// ViewTopic addresses connections that currently have the channel open.
func ViewTopic(channelID string) Topic {
	return Topic{Kind: ScopeView, ID: channelID}
}

func IdentityTopic(identityID string) Topic {
	return Topic{Kind: ScopeIdentity, ID: identityID}
}

func (t Topic) String() string {
	if t.ID == "" {
		return string(t.Kind)
	}
	return string(t.Kind) + ":" + t.ID
}
