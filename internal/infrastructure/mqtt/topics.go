package mqtt

import "fmt"

// Topic prefixes for the showloop MQTT hierarchy.
//
//	showloop/system/status            retained online/offline (LWT)
//	showloop/{player}/command         inbound operator commands
//	showloop/{player}/complete        inbound content completion
//	showloop/{player}/state           retained playback snapshot
//	showloop/{player}/event/{kind}    playback transitions
const (
	// TopicPrefix is the root of every showloop topic.
	TopicPrefix = "showloop"

	// TopicPrefixSystem is the base for system topics shared by all players.
	TopicPrefixSystem = "showloop/system"
)

// Topics builds topics for one player.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{Player: "lobby"}
//	topics.State() // "showloop/lobby/state"
type Topics struct {
	Player string
}

func (t Topics) base() string {
	return fmt.Sprintf("%s/%s", TopicPrefix, t.Player)
}

// Command is where operators and automation send playback commands.
//
// Example: showloop/lobby/command
func (t Topics) Command() string {
	return t.base() + "/command"
}

// Complete is where external content reports it has finished.
//
// Example: showloop/lobby/complete
func (t Topics) Complete() string {
	return t.base() + "/complete"
}

// State carries the retained playback snapshot.
//
// Example: showloop/lobby/state
func (t Topics) State() string {
	return t.base() + "/state"
}

// Event carries a single playback event of the given kind.
//
// Example: showloop/lobby/event/phase_started
func (t Topics) Event(kind string) string {
	return fmt.Sprintf("%s/event/%s", t.base(), kind)
}

// AllEvents matches every event of this player.
//
// Example: showloop/lobby/event/#
func (t Topics) AllEvents() string {
	return t.base() + "/event/#"
}

// SystemStatus returns the topic for online/offline status and the LWT.
//
// Example: showloop/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllPlayerStates matches the state topic of every player on the broker.
//
// Example: showloop/+/state
func (Topics) AllPlayerStates() string {
	return TopicPrefix + "/+/state"
}

// AllTopics matches every showloop topic.
//
// Example: showloop/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
