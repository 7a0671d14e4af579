package chat

import "fmt"

// Room is the surface commands act through: server-authored replies and
// transport address resolution for moderation.
type Room interface {
	// SendAsServer delivers chat lines attributed to the "Server"
	// pseudo-member.
	SendAsServer(lines ...string)
	// PeerAddr returns the transport address of a connection.
	PeerAddr(connID string) (string, bool)
	// PeerAddrByNickname resolves a live member's nickname to the
	// transport address of its connection.
	PeerAddrByNickname(nickname string) (string, bool)
}

// Command is one named chat command.
type Command struct {
	// Name is the invocation name, matched case-sensitively.
	Name string
	// Usage is the signature line shown by help.
	Usage string
	// Run executes the command on behalf of senderID.
	Run func(room Room, args []string, senderID string)
}

// Table is the static command mapping, built once at startup and never
// mutated afterwards.
type Table struct {
	order    []string
	commands map[string]*Command
}

// NewTable builds a Table from the given commands plus the help
// command, which lists every registered usage signature.
//
// Precondition: command names must be unique and non-empty.
func NewTable(cmds []Command) (*Table, error) {
	t := &Table{commands: make(map[string]*Command, len(cmds)+1)}

	all := append([]Command{}, cmds...)
	all = append(all, helpCommand(t))
	for i := range all {
		cmd := &all[i]
		if cmd.Name == "" {
			return nil, fmt.Errorf("command with empty name (usage %q)", cmd.Usage)
		}
		if _, exists := t.commands[cmd.Name]; exists {
			return nil, fmt.Errorf("duplicate command name: %q", cmd.Name)
		}
		t.commands[cmd.Name] = cmd
		t.order = append(t.order, cmd.Name)
	}
	return t, nil
}

// Resolve looks up a command by exact, case-sensitive name.
func (t *Table) Resolve(name string) (*Command, bool) {
	cmd, ok := t.commands[name]
	return cmd, ok
}

// Usages returns every command's usage signature in registration order.
func (t *Table) Usages() []string {
	usages := make([]string, 0, len(t.order))
	for _, name := range t.order {
		usages = append(usages, t.commands[name].Usage)
	}
	return usages
}

// Len returns the number of registered commands.
func (t *Table) Len() int { return len(t.order) }
