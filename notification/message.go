package notification

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig"
)

type messageTemplate struct {
	title   *template.Template
	message *template.Template
}

type messageData struct {
	ActorName string
	Subject   string
	Price     string
}

func mustTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(sprig.TxtFuncMap()).Parse(text))
}

var templates = map[Kind]messageTemplate{
	KindRequestCreated: {
		title:   mustTemplate("created_title", `New {{ .Subject | title }} Request`),
		message: mustTemplate("created_message", `{{ .ActorName | default "Someone" }} has sent you a request for your {{ .Subject }}.`),
	},
	KindRequestAccepted: {
		title:   mustTemplate("accepted_title", `Request Accepted`),
		message: mustTemplate("accepted_message", `{{ .ActorName | default "Someone" }} has accepted your request.`),
	},
	KindRequestRejected: {
		title:   mustTemplate("rejected_title", `Request Rejected`),
		message: mustTemplate("rejected_message", `{{ .ActorName | default "Someone" }} has declined your request.`),
	},
	KindCounterOfferCreated: {
		title:   mustTemplate("counter_title", `New Counter Offer`),
		message: mustTemplate("counter_message", `{{ .ActorName | default "Someone" }} has made a counter offer of {{ .Price }}.`),
	},
}

// Render returns the human readable title and message for the event.
func Render(event Event) (string, string, error) {
	tmpl, ok := templates[event.Kind]
	if !ok {
		return "", "", fmt.Errorf("no template for notification kind %q", event.Kind)
	}

	data := messageData{ActorName: event.ActorName, Subject: "trip"}
	if event.ShipmentID != nil {
		data.Subject = "shipment"
	}
	if event.Price != nil {
		data.Price = event.Price.StringFixed(2)
	}

	title := bytes.NewBuffer(nil)
	if err := tmpl.title.Execute(title, data); err != nil {
		return "", "", fmt.Errorf("render title for %s: %w", event.Kind, err)
	}
	message := bytes.NewBuffer(nil)
	if err := tmpl.message.Execute(message, data); err != nil {
		return "", "", fmt.Errorf("render message for %s: %w", event.Kind, err)
	}
	return title.String(), message.String(), nil
}
