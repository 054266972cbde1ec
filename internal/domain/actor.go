package domain

// ActorType differentiates who performs an operation.
type ActorType string

const (
	ActorTypeAgent    ActorType = "agent"
	ActorTypeCustomer ActorType = "customer"
	ActorTypeSystem   ActorType = "system"
)

// Actor identifies the caller an operation is attributed to.
type Actor struct {
	ID           string
	Name         string
	Email        string
	Type         ActorType
	Capabilities []string
}

// SystemActor is used when no caller identity is available.
var SystemActor = Actor{Name: "System", Type: ActorTypeSystem}

// IDRef returns the actor id as a nullable reference.
func (a Actor) IDRef() *string {
	if a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}

// DisplayName returns a human label for notes.
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	if a.Email != "" {
		return a.Email
	}
	if a.ID != "" {
		return a.ID
	}
	return SystemActor.Name
}

// Can reports whether the actor carries capability.
func (a Actor) Can(capability string) bool {
	for _, c := range a.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}
