// Package command implements the chat-triggered slash command
// interpreter described in §4.7: world management, player lookup,
// private messaging, and operator administration.
package command

import (
	"fmt"
	"strings"

	"github.com/hbit/hbit-server/internal/player"
)

// ServerHandle is everything the interpreter needs from the running
// server. The orchestrator implements it; this package never imports
// the orchestrator, so conn (which also depends on this interface) and
// orchestrator can both sit above command without a cycle.
type ServerHandle interface {
	WorldNames() []string
	SaveWorld(name string) error

	PlayerNames() []string
	LookupPlayer(username string) (*player.Handle, bool)

	IsOperator(username string) bool
	SetOperator(username string, operator bool) bool
	Ban(username, reason string) bool
	Unban(username string) bool
	Kick(username, reason string) bool

	Stop()
}

const (
	defaultBanReason  = "Banned by operator"
	defaultKickReason = "Kicked by operator"
)

// Interpret parses one chat line already known to start with "/" and
// carries out its effect, replying to caller with a server-authored
// chat line for every outcome (success or rejection), except a
// successful /stop, which sends no reply.
func Interpret(server ServerHandle, caller *player.Handle, line string) {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		reply(caller, "Empty command")
		return
	}

	isOp := server.IsOperator(caller.Username)
	name, args := fields[0], fields[1:]

	switch name {
	case "world":
		handleWorld(server, caller, args, isOp)
	case "players":
		reply(caller, "Online: "+strings.Join(server.PlayerNames(), ", "))
	case "locate":
		handleLocate(server, caller, args)
	case "w":
		handleWhisper(server, caller, args)
	case "op":
		handleSetOperator(server, caller, args, isOp, true)
	case "deop":
		handleSetOperator(server, caller, args, isOp, false)
	case "ban":
		handleBan(server, caller, args, isOp)
	case "unban":
		handleUnban(server, caller, args, isOp)
	case "kick":
		handleKick(server, caller, args, isOp)
	case "stop":
		handleStop(server, caller, isOp)
	case "help":
		printHelp(caller, isOp)
	default:
		reply(caller, "Unknown command: "+name)
	}
}

func handleWorld(server ServerHandle, caller *player.Handle, args []string, isOp bool) {
	if len(args) == 0 {
		reply(caller, "Usage: /world <join|list|save>")
		return
	}

	switch args[0] {
	case "join":
		if len(args) < 2 {
			reply(caller, "Usage: /world join <name>")
			return
		}
		caller.Send(player.SendTo{World: args[1]})
	case "list":
		reply(caller, "Worlds: "+strings.Join(server.WorldNames(), ", "))
	case "save":
		if !isOp {
			reply(caller, "You are not an operator")
			return
		}
		name := caller.WorldName()
		if name == "" {
			reply(caller, "You are not in a world")
			return
		}
		if err := server.SaveWorld(name); err != nil {
			reply(caller, "Save failed: "+err.Error())
			return
		}
		reply(caller, "Saved "+name)
	default:
		reply(caller, "Unknown world subcommand: "+args[0])
	}
}

func handleLocate(server ServerHandle, caller *player.Handle, args []string) {
	if len(args) < 1 {
		reply(caller, "Usage: /locate <name>")
		return
	}
	target, ok := server.LookupPlayer(args[0])
	if !ok {
		reply(caller, "No such player: "+args[0])
		return
	}
	reply(caller, fmt.Sprintf("%s is in %s", target.Username, target.WorldName()))
}

func handleWhisper(server ServerHandle, caller *player.Handle, args []string) {
	if len(args) < 2 {
		reply(caller, "Usage: /w <name> <message>")
		return
	}
	target, ok := server.LookupPlayer(args[0])
	if !ok {
		reply(caller, "No such player: "+args[0])
		return
	}
	msg := strings.Join(args[1:], " ")
	target.Send(player.MessageCmd{Text: fmt.Sprintf("[%s -> you] %s", caller.Username, msg)})
	reply(caller, fmt.Sprintf("[you -> %s] %s", target.Username, msg))
}

func handleSetOperator(server ServerHandle, caller *player.Handle, args []string, isOp, operator bool) {
	if !isOp {
		reply(caller, "You are not an operator")
		return
	}
	if len(args) < 1 {
		reply(caller, "Usage: /op <name> (or /deop <name>)")
		return
	}
	if !server.SetOperator(args[0], operator) {
		reply(caller, "No such player: "+args[0])
		return
	}
	verb := "is now an operator"
	if !operator {
		verb = "is no longer an operator"
	}
	reply(caller, args[0]+" "+verb)
}

func handleBan(server ServerHandle, caller *player.Handle, args []string, isOp bool) {
	if !isOp {
		reply(caller, "You are not an operator")
		return
	}
	if len(args) < 1 {
		reply(caller, "Usage: /ban <name> [reason]")
		return
	}
	reason := defaultBanReason
	if len(args) > 1 {
		reason = strings.Join(args[1:], " ")
	}
	server.Ban(args[0], reason)
	reply(caller, "Banned "+args[0])
}

func handleUnban(server ServerHandle, caller *player.Handle, args []string, isOp bool) {
	if !isOp {
		reply(caller, "You are not an operator")
		return
	}
	if len(args) < 1 {
		reply(caller, "Usage: /unban <name>")
		return
	}
	server.Unban(args[0])
	reply(caller, "Unbanned "+args[0])
}

func handleKick(server ServerHandle, caller *player.Handle, args []string, isOp bool) {
	if !isOp {
		reply(caller, "You are not an operator")
		return
	}
	if len(args) < 1 {
		reply(caller, "Usage: /kick <name> [reason]")
		return
	}
	reason := defaultKickReason
	if len(args) > 1 {
		reason = strings.Join(args[1:], " ")
	}
	if !server.Kick(args[0], reason) {
		reply(caller, "No such player: "+args[0])
		return
	}
	reply(caller, "Kicked "+args[0])
}

func handleStop(server ServerHandle, caller *player.Handle, isOp bool) {
	if !isOp {
		reply(caller, "You are not an operator")
		return
	}
	server.Stop()
}

func printHelp(caller *player.Handle, isOp bool) {
	lines := []string{
		"/world join <name>, /world list",
		"/players, /locate <name>, /w <name> <message>",
		"/help",
	}
	if isOp {
		lines = append(lines,
			"/world save (operator)",
			"/op <name>, /deop <name> (operator)",
			"/ban <name> [reason], /unban <name> (operator)",
			"/kick <name> [reason], /stop (operator)",
		)
	}
	for _, l := range lines {
		reply(caller, l)
	}
}

// reply sends a server-authored (id=0) chat line back to caller.
func reply(caller *player.Handle, text string) {
	caller.Send(player.MessageCmd{Text: text})
}
