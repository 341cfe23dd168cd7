package portal

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// Service 是 /api/services/list 中的一项服务。
type Service struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	URL         string `json:"url"`
	IsNew       bool   `json:"isNew"`
}

// Field 是 /api/schema/fields 下发的表单字段。
type Field struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Required bool     `json:"required,omitempty"`
	Options  []string `json:"options,omitempty"`
	HelpText string   `json:"helpText"`
}

// Agent 是可联系的投保顾问。
type Agent struct {
	ID           int      `json:"id"`
	Name         string   `json:"name"`
	Title        string   `json:"title"`
	Phone        string   `json:"phone"`
	Availability string   `json:"availability"`
	Languages    []string `json:"languages"`
	Badge        string   `json:"badge"`
}

// Question 是投保问卷中的一道题。
type Question struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Type     string   `json:"type"`
	Options  []string `json:"options"`
}

var services = []Service{
	{ID: "primary-care", Name: "Primary Care", Description: "Find and manage your primary care physician", Icon: "👨‍⚕️", URL: "/services/primary-care"},
	{ID: "prescription-management", Name: "Prescription Management", Description: "Refill prescriptions and track your medications", Icon: "💊", URL: "/services/prescriptions"},
	{ID: "claims-status", Name: "Claims Status", Description: "Track the status of your claims", Icon: "📋", URL: "/services/claims"},
	{ID: "urgent-care", Name: "Urgent Care Locator", Description: "Find nearby urgent care facilities", Icon: "🏥", URL: "/services/urgent-care"},
	{ID: "telehealth", Name: "Telehealth Visits", Description: "Schedule virtual doctor visits", Icon: "💻", URL: "/services/telehealth", IsNew: true},
	{ID: "wellness-programs", Name: "Wellness Programs", Description: "Access wellness and fitness programs", Icon: "🏃", URL: "/services/wellness", IsNew: true},
	{ID: "vaccine-scheduler", Name: "Vaccine Scheduler", Description: "Schedule and manage your vaccinations", Icon: "💉", URL: "/services/vaccine-scheduler", IsNew: true},
}

// 字段名可以在服务端改名（phoneNumber -> contactNumber），页面按下发的 schema 渲染
var schemaFields = []Field{
	{ID: "contactNumber", Label: "Contact Number", Type: "tel", Required: true, HelpText: "Your primary contact number"},
	{ID: "emailAddress", Label: "Email Address", Type: "email", Required: true, HelpText: "Where we can reach you"},
	{ID: "memberStatus", Label: "Membership Status", Type: "select", Options: []string{"Active", "Inactive", "Suspended"}, HelpText: "Your current membership status"},
}

var agents = []Agent{
	{ID: 1, Name: "Sarah Johnson", Title: "Licensed Health Insurance Agent", Phone: "1-800-AMBETTER", Availability: "Available now", Languages: []string{"English", "Spanish"}, Badge: "⭐ Top rated"},
	{ID: 2, Name: "Michael Chen", Title: "Senior Enrollment Specialist", Phone: "1-800-AMBETTER", Availability: "Available in 5 min", Languages: []string{"English", "Mandarin", "Cantonese"}, Badge: "5+ years"},
	{ID: 3, Name: "Patricia Rodriguez", Title: "Medicare Specialist", Phone: "1-800-AMBETTER", Availability: "Available in 15 min", Languages: []string{"English", "Spanish"}, Badge: "✅ Certified"},
}

var enrollmentQuestions = []Question{
	{ID: "q1", Question: "Are you new to Ambetter Health?", Type: "radio", Options: []string{"Yes", "No, renewing coverage"}},
	{ID: "q2", Question: "What is your primary reason for enrolling?", Type: "radio", Options: []string{"Individual coverage", "Family coverage", "Medicare", "Medicaid"}},
	{ID: "q3", Question: "Which services are most important to you?", Type: "checkbox", Options: []string{"Preventive care", "Prescription coverage", "Dental coverage", "Vision coverage", "Mental health services"}},
}

func (p *Portal) registerAPI(app *fiber.App) {
	api := app.Group("/api")

	api.Get("/version", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"version":   "ambetter-v" + p.Version(),
			"timestamp": time.Now().UTC(),
		})
	})

	api.Get("/config/logo", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"url":         p.logoURL,
			"lastUpdated": time.Now().UTC(),
		})
	})

	api.Get("/services/list", func(c fiber.Ctx) error {
		// totalServices 与列表长度不一致，保持与线上接口相同
		return c.JSON(fiber.Map{
			"services":      services,
			"totalServices": 6,
			"timestamp":     time.Now().UTC(),
		})
	})

	api.Get("/schema/fields", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"schema": fiber.Map{"fields": schemaFields},
			"exampleData": fiber.Map{
				"contactNumber": "+1-555-123-4567",
				"emailAddress":  "member@example.com",
				"memberStatus":  "Active",
			},
			"timestamp": time.Now().UTC(),
		})
	})

	api.Get("/enrollment/agents", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"agents":              agents,
			"enrollmentQuestions": enrollmentQuestions,
			"lastUpdated":         time.Now().UTC(),
		})
	})

	api.Post("/sync", p.handleSync)
}

func (p *Portal) handleSync(c fiber.Ctx) error {
	var record SyncRecord
	if err := json.Unmarshal(c.Body(), &record); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if strings.TrimSpace(record.Tag) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tag_required"})
	}
	record.ReceivedAt = time.Now().UTC()

	p.mu.Lock()
	p.syncs = append(p.syncs, record)
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"action":  "portal",
		"tag":     record.Tag,
		"version": record.Version,
	}).Info("portal_sync_received")
	return c.JSON(fiber.Map{"ok": true, "receivedAt": record.ReceivedAt})
}
