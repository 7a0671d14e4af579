package room

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ldnlab/roomd/internal/wire"
)

// SendAsServer delivers chat lines attributed to a synthetic "Server"
// member. Clients attribute chat to nicknames they already know, so the
// pseudo-member is introduced via a fake-member snapshot first, the
// lines sent, then the padding removed with a final snapshot.
func (r *Room) SendAsServer(lines ...string) {
	if len(lines) == 0 {
		return
	}

	r.SetFakeMembers([]string{ServerNickname})
	r.pause(r.opts.AnnounceDelay)
	for i, line := range lines {
		if i > 0 {
			r.pause(r.opts.AnnounceDelay / 2)
		}
		r.Broadcast(wire.ChatMessage(ServerNickname, ServerNickname, line))
		r.log.Info("server chat", zap.String("text", line))
	}
	r.pause(r.opts.AnnounceDelay)
	r.SetFakeMembers(nil)
}

// Greet announces a completed join: the configured greeting template, or
// a structured MemberJoin status message excluding the joiner.
func (r *Room) Greet(connID string, m Member) {
	if len(r.opts.GreetMessage) > 0 {
		r.SendAsServer(expandTemplate(r.opts.GreetMessage, m.Nickname)...)
		return
	}
	r.Broadcast(wire.StatusMessage(wire.StatusMemberJoin, m.Nickname, m.Username, m.Addr), connID)
}

func (r *Room) pause(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// expandTemplate substitutes {{name}} in each template line.
func expandTemplate(lines []string, name string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = strings.ReplaceAll(line, "{{name}}", name)
	}
	return out
}
