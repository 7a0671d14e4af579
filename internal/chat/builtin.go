package chat

import (
	"fmt"
	"strings"

	"github.com/ldnlab/roomd/internal/moderation"
)

const reportUsage = "/report (user: string - use quotes!) (...reason: string[])"

// helpCommand lists every registered usage signature as server-authored
// chat lines. It captures the table it lives in, so listing reflects
// whatever was registered at startup, itself included.
func helpCommand(t *Table) Command {
	return Command{
		Name:  "help",
		Usage: "/help",
		Run: func(room Room, _ []string, _ string) {
			lines := append([]string{"Available commands:"}, t.Usages()...)
			lines = append(lines, `Remember to use "quotes" if you need spaces in an argument.`)
			room.SendAsServer(lines...)
		},
	}
}

// reportCommand records a report against a live member. Duplicate
// reports from the same reporter keep the original record; the reply
// surfaces the previously recorded reason.
func reportCommand(store *moderation.Store) Command {
	return Command{
		Name:  "report",
		Usage: reportUsage,
		Run: func(room Room, args []string, senderID string) {
			reporterAddr, ok := room.PeerAddr(senderID)
			if !ok {
				return
			}

			var user, reason string
			if len(args) > 0 {
				user = strings.TrimSpace(args[0])
			}
			if len(args) > 1 {
				reason = strings.TrimSpace(strings.Join(args[1:], " "))
			}
			if user == "" || reason == "" {
				room.SendAsServer("/report [user: string, use quotes!] [reason: string]")
				return
			}

			targetAddr, ok := room.PeerAddrByNickname(user)
			if !ok {
				room.SendAsServer(fmt.Sprintf("User %q not found (did you forget to put it in quotes if it has spaces?)", user))
				return
			}

			record, added := store.AddReport(moderation.Report{
				ReporterIP: reporterAddr,
				ReportedIP: targetAddr,
				Reason:     reason,
			})
			if added {
				room.SendAsServer(fmt.Sprintf("User %q reported for: %s", user, reason))
			} else {
				room.SendAsServer(fmt.Sprintf("You already reported user %q for: %s", user, record.Reason))
			}
		},
	}
}

// tuxTemplate is the speech-bubble art around the message line.
const tuxTemplate = `


%s
______
. ..\
. . .\
. . . ..----.
. . . |o_o|
. . . |:_/.|
. . .//....\ \
. . .(| ....|..)
. ./'\_..._/` + "`" + `\
. .\__)=(__/
`

// tuxsayCommand broadcasts the message inside a fixed ASCII-art penguin
// speech bubble, one server-authored chat line per art row.
func tuxsayCommand() Command {
	return Command{
		Name:  "tuxsay",
		Usage: "/tuxsay (...msg: string[])",
		Run: func(room Room, args []string, _ string) {
			message := strings.TrimSpace(strings.Join(args, " "))
			if message == "" {
				return
			}
			room.SendAsServer(strings.Split(fmt.Sprintf(tuxTemplate, message), "\n")...)
		},
	}
}

// BuiltinCommands returns the compiled-in commands. The help command is
// not included; NewTable registers it against the finished table.
func BuiltinCommands(store *moderation.Store) []Command {
	return []Command{
		reportCommand(store),
		tuxsayCommand(),
	}
}
