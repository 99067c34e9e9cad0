package main

import (
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"

	confidence "github.com/confidence/confidence-go-client"
)

func main() {
	http.HandleFunc("/", RootHandler)

	fmt.Printf("Starting server at port 5000\n")
	if err := http.ListenAndServe(":5000", nil); err != nil {
		log.Fatal(err)
	}
}

type TemplateData struct {
	TargetingKey string
	ShowButton   bool
	ButtonColour string
}

func RootHandler(w http.ResponseWriter, r *http.Request) {
	client, err := confidence.NewClient(os.Getenv("CONFIDENCE_CLIENT_SECRET"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer client.Close(r.Context())

	q := r.URL.Query()

	attrs := map[string]interface{}{}
	if q.Get("country") != "" {
		attrs["country"] = q.Get("country")
	}

	var ec confidence.EvaluationContext
	if q.Get("targeting-key") != "" {
		ec = confidence.NewEvaluationContext(q.Get("targeting-key"), attrs)
	} else {
		ec = confidence.NewAnonymousEvaluationContext(attrs)
	}

	showButton := client.EvaluateBoolean(r.Context(), "secret-button.enabled", false, ec)
	buttonColour := client.EvaluateString(r.Context(), "secret-button.colour", "blue", ec)

	templateData := TemplateData{
		TargetingKey: ec.TargetingKey(),
		ShowButton:   showButton.Value,
		ButtonColour: buttonColour.Value,
	}

	tmpl := template.Must(template.ParseFiles("home.html"))
	if err := tmpl.Execute(w, templateData); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
