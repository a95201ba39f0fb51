package assistant

import (
	"errors"
	"fmt"
	log "log/slog"
	"net/url"
	"strconv"
	"strings"

	"proton/internal/nav"
)

const (
	replySleeping      = "I am sleeping. Please say 'wake up' to reactivate me."
	replyGoodbye       = "Goodbye! Have a great day!"
	replyGoingToSleep  = "Going to sleep. Say 'wake up' to reactivate me."
	replyAlreadyAwake  = "I am already awake."
	replyEmptyDir      = "The directory is empty."
	replyInvalidNumber = "Invalid file number."
	replyAtRoot        = "Already at the root directory."
	replyHello         = "Hello there! How can I assist you today?"
	replyHowAreYou     = "I'm doing great, thank you! How can I help you?"
	replyWelcome       = "You're welcome!"
)

type rule struct {
	name   string
	match  func(command string) bool
	action func(p *Processor, command string) error
}

// rules are evaluated top to bottom; the first match runs alone.
var rules = []rule{
	{"terminate", containsAny("exit", "terminate"), (*Processor).terminate},
	{"sleep", containsAny("bye"), (*Processor).sleep},
	{"wake", containsAny("wake up"), (*Processor).wake},
	{"search", containsAny("search"), (*Processor).search},
	{"location", containsAny("location"), (*Processor).location},
	{"gesture-launch", containsAny("launch gesture recognition"), (*Processor).launchGesture},
	{"gesture-stop", containsAny("stop gesture recognition"), (*Processor).stopGesture},
	{"copy", containsAny("copy"), (*Processor).copy},
	{"paste", containsAny("paste", "page", "pest"), (*Processor).paste},
	{"list", equals("list"), (*Processor).list},
	{"open-index", isIndexedOpen, (*Processor).openIndex},
	{"open", hasPrefix("open "), (*Processor).openApplication},
	{"back", equals("back"), (*Processor).back},
	{"time", containsAny("time"), (*Processor).tellTime},
	{"date", containsAny("date"), (*Processor).tellDate},
	{"clear", containsAny("clear"), (*Processor).clearLog},
	{"greeting", containsAny("hi", "hello", "hey"), reply(replyHello)},
	{"how-are-you", containsAny("how are you"), reply(replyHowAreYou)},
	{"thanks", containsAny("thank"), reply(replyWelcome)},
	{"fallback", func(string) bool { return true }, (*Processor).fallback},
}

func match(command string) rule {
	for _, r := range rules {
		if r.match(command) {
			return r
		}
	}
	return rules[len(rules)-1]
}

func containsAny(words ...string) func(string) bool {
	return func(command string) bool {
		for _, w := range words {
			if strings.Contains(command, w) {
				return true
			}
		}
		return false
	}
}

func equals(word string) func(string) bool {
	return func(command string) bool { return command == word }
}

func hasPrefix(prefix string) func(string) bool {
	return func(command string) bool { return strings.HasPrefix(command, prefix) }
}

func isIndexedOpen(command string) bool {
	fields := strings.Fields(command)
	if len(fields) != 2 || fields[0] != "open" {
		return false
	}
	for _, c := range fields[1] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func reply(text string) func(*Processor, string) error {
	return func(p *Processor, _ string) error {
		p.say(text)
		return nil
	}
}

func (p *Processor) terminate(string) error {
	p.say(replyGoodbye)
	p.terminated = true
	return nil
}

func (p *Processor) sleep(string) error {
	p.active = false
	p.say(replyGoingToSleep)
	p.publishStatus()
	return nil
}

func (p *Processor) wake(string) error {
	wasAsleep := !p.active
	p.active = true
	p.publishStatus()
	if !wasAsleep {
		p.say(replyAlreadyAwake)
		return nil
	}
	p.greet()
	return nil
}

func (p *Processor) search(command string) error {
	_, query, _ := strings.Cut(command, "search")
	query = strings.TrimSpace(query)
	if query == "" {
		p.say("Please specify what you want to search for.")
		return nil
	}
	if err := p.openURL("https://google.com/search?q=" + url.QueryEscape(query)); err != nil {
		return err
	}
	p.say("Searching for " + query)
	return nil
}

func (p *Processor) location(command string) error {
	_, place, _ := strings.Cut(command, "location")
	place = strings.TrimSpace(place)
	for _, filler := range []string{"of ", "for "} {
		place = strings.TrimPrefix(place, filler)
	}
	place = strings.TrimSpace(place)
	if place == "" {
		p.say("No location provided.")
		return nil
	}
	if err := p.openURL("https://google.nl/maps/place/" + url.PathEscape(place)); err != nil {
		return err
	}
	p.say("Looking up the location: " + place)
	return nil
}

func (p *Processor) openURL(u string) error {
	if p.deps.Desktop == nil {
		return errors.New("no browser available")
	}
	return p.deps.Desktop.OpenURL(u)
}

func (p *Processor) launchGesture(string) error {
	switch {
	case p.gesture:
		p.say("Gesture recognition is already active.")
	case p.deps.Gesture == nil:
		p.say("Gesture recognition module is not available.")
	default:
		if err := p.deps.Gesture.Start(); err != nil {
			p.say(fmt.Sprintf("Failed to launch gesture recognition: %v", err))
			return nil
		}
		p.gesture = true
		p.say("Gesture recognition launched.")
	}
	return nil
}

func (p *Processor) stopGesture(string) error {
	if !p.gesture {
		p.say("Gesture recognition is not active.")
		return nil
	}
	if err := p.deps.Gesture.Stop(); err != nil {
		p.say(fmt.Sprintf("Failed to stop gesture recognition: %v", err))
		return nil
	}
	p.gesture = false
	p.say("Gesture recognition stopped.")
	return nil
}

func (p *Processor) copy(string) error {
	if p.deps.Keyboard == nil {
		return errors.New("keyboard control is not available")
	}
	if err := p.deps.Keyboard.Copy(); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	p.say("Copied to clipboard.")
	return nil
}

func (p *Processor) paste(string) error {
	if p.deps.Keyboard == nil {
		return errors.New("keyboard control is not available")
	}
	if err := p.deps.Keyboard.Paste(); err != nil {
		return fmt.Errorf("paste: %w", err)
	}
	p.say("Pasted from clipboard.")
	return nil
}

func (p *Processor) list(string) error {
	entries, err := p.nav.List()
	if err != nil {
		p.say(fmt.Sprintf("Failed to list directory: %v", err))
		return nil
	}
	if len(entries) == 0 {
		p.say(replyEmptyDir)
		return nil
	}
	p.say(listing("Listing files and folders:", entries))
	return nil
}

func (p *Processor) openIndex(command string) error {
	n, err := strconv.Atoi(strings.Fields(command)[1])
	if err != nil {
		p.say(replyInvalidNumber)
		return nil
	}

	item, err := p.nav.Resolve(n)
	switch {
	case errors.Is(err, nav.ErrInvalidIndex):
		p.say(replyInvalidNumber)
		return nil
	case errors.Is(err, nav.ErrNotFound):
		log.Debug("Listed entry vanished", "err", err)
		p.say("That item no longer exists. Say 'list' to refresh.")
		return nil
	case err != nil:
		return err
	}

	if item.IsDir {
		entries, err := p.nav.Enter(item)
		if err != nil {
			p.say(fmt.Sprintf("Failed to open folder: %v", err))
			return nil
		}
		p.say(listing(fmt.Sprintf("Opened folder %s. Listing contents:", item.Name), entries))
		return nil
	}

	if p.deps.Desktop == nil {
		return errors.New("opening files is not available")
	}
	if err := p.deps.Desktop.OpenPath(item.Path); err != nil {
		p.say(fmt.Sprintf("Failed to open file: %v", err))
		return nil
	}
	p.say(fmt.Sprintf("Opened file %s.", item.Name))
	return nil
}

func (p *Processor) openApplication(command string) error {
	app := strings.TrimSpace(strings.TrimPrefix(command, "open "))
	if p.deps.Desktop == nil {
		return errors.New("launching applications is not available")
	}
	if err := p.deps.Desktop.LaunchApplication(app); err != nil {
		p.say(fmt.Sprintf("Failed to open %s: %v", app, err))
		return nil
	}
	p.say("Opening " + app)
	return nil
}

func (p *Processor) back(string) error {
	entries, err := p.nav.Up()
	switch {
	case errors.Is(err, nav.ErrAtRoot):
		p.say(replyAtRoot)
	case err != nil:
		p.say(fmt.Sprintf("Failed to list directory: %v", err))
	default:
		p.say(listing("Moved back. Listing contents:", entries))
	}
	return nil
}

func (p *Processor) tellTime(string) error {
	p.say("The current time is " + p.deps.Now().Format("03:04 PM"))
	return nil
}

func (p *Processor) tellDate(string) error {
	p.say("Today is " + p.deps.Now().Format("January 02, 2006"))
	return nil
}

func (p *Processor) clearLog(string) error {
	p.deps.Sink.Clear()
	p.say("I've cleared the conversation log")
	return nil
}

func (p *Processor) fallback(command string) error {
	if p.deps.Responder != nil {
		text, err := p.deps.Responder.Respond(p.ctx, command)
		if err == nil && strings.TrimSpace(text) != "" {
			p.say(text)
			return nil
		}
		if err != nil {
			log.Warn("Responder failed", "err", err)
		}
	}
	p.say(fmt.Sprintf("Sorry, I don't know how to '%s'.", command))
	return nil
}

func listing(header string, entries []string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteByte('\n')
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e)
	}
	return b.String()
}

// Help describes the commands the assistant understands.
func Help() string {
	return `Available commands:
- "open [application]" - opens the named application
- "time" / "date" - tells the current time or date
- "clear" - clears the conversation log
- "search [query]" - searches the web
- "location [place]" - looks the place up on a map
- "launch gesture recognition" / "stop gesture recognition"
- "copy" / "paste" - presses the copy or paste shortcut
- "list" - lists the current folder
- "open [number]" - opens an item of the last listing
- "back" - goes to the parent folder
- "bye" - puts the assistant to sleep, "wake up" wakes it
- "exit" / "terminate" - closes the assistant
- small talk: hi, hello, how are you, thanks`
}
