// ABOUTME: Playback commands forwarded to the server as controller commands
// ABOUTME: Includes constructors and a parser for the textual form used by the CLI
package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Sendspin/sendspin-companion/pkg/protocol"
)

// Kind names a controller command
type Kind string

const (
	KindPlay     Kind = "play"
	KindPause    Kind = "pause"
	KindStop     Kind = "stop"
	KindNext     Kind = "next"
	KindPrevious Kind = "previous"
	KindVolume   Kind = "volume"
	KindMute     Kind = "mute"
)

// Command is one control request. Volume is only used by KindVolume and Mute by KindMute.
type Command struct {
	Kind   Kind
	Volume int
	Mute   bool
}

func Play() Command     { return Command{Kind: KindPlay} }
func Pause() Command    { return Command{Kind: KindPause} }
func Stop() Command     { return Command{Kind: KindStop} }
func Next() Command     { return Command{Kind: KindNext} }
func Previous() Command { return Command{Kind: KindPrevious} }

// Volume builds a group volume command, clamped to 0-100
func Volume(level int) Command {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	return Command{Kind: KindVolume, Volume: level}
}

// Mute builds a group mute command
func Mute(muted bool) Command {
	return Command{Kind: KindMute, Mute: muted}
}

func (c Command) String() string {
	switch c.Kind {
	case KindVolume:
		return fmt.Sprintf("volume %d", c.Volume)
	case KindMute:
		if c.Mute {
			return "mute on"
		}
		return "mute off"
	default:
		return string(c.Kind)
	}
}

func (c Command) valid() bool {
	switch c.Kind {
	case KindPlay, KindPause, KindStop, KindNext, KindPrevious, KindMute:
		return true
	case KindVolume:
		return c.Volume >= 0 && c.Volume <= 100
	default:
		return false
	}
}

// message wraps the command as client/command
func (c Command) message() protocol.Message {
	cmd := &protocol.ControllerCommand{Command: string(c.Kind)}
	switch c.Kind {
	case KindVolume:
		v := c.Volume
		cmd.Volume = &v
	case KindMute:
		m := c.Mute
		cmd.Mute = &m
	}

	return protocol.Message{
		Type:    protocol.TypeClientCommand,
		Payload: protocol.ClientCommand{Controller: cmd},
	}
}

// ParseCommand reads commands like "play", "prev", "vol 40" or "mute off"
func ParseCommand(s string) (Command, error) {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty command", ErrCommandRejected)
	}

	switch fields[0] {
	case "play":
		return Play(), nil
	case "pause":
		return Pause(), nil
	case "stop":
		return Stop(), nil
	case "next", "skip":
		return Next(), nil
	case "previous", "prev", "back":
		return Previous(), nil
	case "unmute":
		return Mute(false), nil
	case "mute":
		if len(fields) < 2 {
			return Mute(true), nil
		}
		switch fields[1] {
		case "on", "true", "1", "yes":
			return Mute(true), nil
		case "off", "false", "0", "no":
			return Mute(false), nil
		}
		return Command{}, fmt.Errorf("%w: mute expects on or off, got %q", ErrCommandRejected, fields[1])
	case "volume", "vol":
		if len(fields) < 2 {
			return Command{}, fmt.Errorf("%w: volume needs a level", ErrCommandRejected)
		}
		level, err := strconv.Atoi(fields[1])
		if err != nil {
			return Command{}, fmt.Errorf("%w: volume level %q is not a number", ErrCommandRejected, fields[1])
		}
		return Volume(level), nil
	}

	return Command{}, fmt.Errorf("%w: unknown command %q", ErrCommandRejected, fields[0])
}
