package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/avelychko/bookmarket-backend/models"
	"github.com/avelychko/bookmarket-backend/store"
)

// ListingHandler is catalog glue around the transaction engine: just enough
// CRUD to create and inspect the listings transactions run against.
type ListingHandler struct {
	Store store.Store
}

func NewListingHandler(st store.Store) *ListingHandler {
	return &ListingHandler{Store: st}
}

type createListingRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Condition   string `json:"condition"`
}

func (h *ListingHandler) CreateListing(c *fiber.Ctx) error {
	var req createListingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: " + err.Error()})
	}
	if req.Title == "" || req.Price == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title and price are required"})
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || !price.IsPositive() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "price must be a positive decimal"})
	}

	condition := req.Condition
	if condition == "" {
		condition = models.ConditionNew
	}
	if condition != models.ConditionNew && condition != models.ConditionUsed {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "condition must be new or used"})
	}

	listing := &models.BookListing{
		UserID:      actorID(c),
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		Price:       price.Round(2),
		Condition:   condition,
	}
	if err := h.Store.CreateListing(c.UserContext(), listing); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create listing: " + err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(listing)
}

func (h *ListingHandler) ListListings(c *fiber.Ctx) error {
	listings, err := h.Store.ListListings(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list listings: " + err.Error()})
	}
	return c.JSON(fiber.Map{"listings": listings})
}

func (h *ListingHandler) GetListing(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid listing id"})
	}

	listing, err := h.Store.GetListing(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "listing not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to retrieve listing: " + err.Error()})
	}
	return c.JSON(listing)
}
