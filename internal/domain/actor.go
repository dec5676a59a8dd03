package domain

import "strings"

// ActorKind classifies who initiated a mutation.
type ActorKind string

// ActorKind values.
const (
	ActorKindHuman  ActorKind = "human"
	ActorKindAgent  ActorKind = "agent"
	ActorKindSystem ActorKind = "system"
)

// systemActorID is the fixed identity carried by engine-initiated mutations.
const systemActorID = "system"

// Actor identifies the human, agent, or system principal behind a mutation.
// Every audit record and prerequisite evaluation carries one, so callers
// cannot bypass attribution.
type Actor struct {
	Kind ActorKind `json:"kind"`
	ID   string    `json:"id"`
}

// HumanActor returns a human actor with the given id.
func HumanActor(id string) Actor {
	return Actor{Kind: ActorKindHuman, ID: strings.TrimSpace(id)}
}

// AgentActor returns an agent actor with the given id.
func AgentActor(id string) Actor {
	return Actor{Kind: ActorKindAgent, ID: strings.TrimSpace(id)}
}

// SystemActor returns the shared system actor.
func SystemActor() Actor {
	return Actor{Kind: ActorKindSystem, ID: systemActorID}
}

// NormalizeActorKind canonicalizes actor kind aliases.
func NormalizeActorKind(kind ActorKind) ActorKind {
	switch strings.TrimSpace(strings.ToLower(string(kind))) {
	case "human", "user":
		return ActorKindHuman
	case "agent", "ai":
		return ActorKindAgent
	case "system":
		return ActorKindSystem
	default:
		return ActorKind(strings.TrimSpace(strings.ToLower(string(kind))))
	}
}

// IsValidActorKind reports whether the actor kind is supported.
func IsValidActorKind(kind ActorKind) bool {
	switch NormalizeActorKind(kind) {
	case ActorKindHuman, ActorKindAgent, ActorKindSystem:
		return true
	default:
		return false
	}
}

// Validate checks the actor carries a supported kind and a usable id.
func (a Actor) Validate() error {
	if !IsValidActorKind(a.Kind) {
		return ErrInvalidActor
	}
	if a.Kind != ActorKindSystem && strings.TrimSpace(a.ID) == "" {
		return ErrInvalidActor
	}
	return nil
}

// Normalize returns the actor with canonical kind and trimmed id. The system
// actor always resolves to the shared system identity.
func (a Actor) Normalize() Actor {
	a.Kind = NormalizeActorKind(a.Kind)
	a.ID = strings.TrimSpace(a.ID)
	if a.Kind == ActorKindSystem {
		a.ID = systemActorID
	}
	return a
}
