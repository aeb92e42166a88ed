package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/avelychko/bookmarket-backend/service"
)

type TransactionHandler struct {
	Svc *service.Service
}

func NewTransactionHandler(svc *service.Service) *TransactionHandler {
	return &TransactionHandler{Svc: svc}
}

func (h *TransactionHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// InitiatePayment starts a purchase of the listing and returns the provider
// approval URL the buyer must be redirected to.
func (h *TransactionHandler) InitiatePayment(c *fiber.Ctx) error {
	listingID, err := parseID(c.Params("listing_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid listing id"})
	}

	res, err := h.Svc.Initiate(c.UserContext(), listingID, actorID(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(res)
}

// ExecutePayment is the provider return redirect: paymentId and PayerID come
// back as query parameters once the buyer approves.
func (h *TransactionHandler) ExecutePayment(c *fiber.Ctx) error {
	paymentID := c.Query("paymentId")
	payerID := c.Query("PayerID")
	if paymentID == "" || payerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "paymentId and PayerID are required"})
	}

	if err := h.Svc.Execute(c.UserContext(), paymentID, payerID, actorID(c)); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"message": "payment executed"})
}

// CancelPayment is the provider cancel redirect.
func (h *TransactionHandler) CancelPayment(c *fiber.Ctx) error {
	paymentID := c.Query("paymentId")
	if paymentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "paymentId is required"})
	}

	if err := h.Svc.Cancel(c.UserContext(), paymentID, actorID(c)); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"message": "payment cancelled"})
}

func (h *TransactionHandler) SellerConfirmShipment(c *fiber.Ctx) error {
	txnID, err := parseID(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid transaction id"})
	}

	if err := h.Svc.SellerConfirm(c.UserContext(), txnID, actorID(c)); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"message": "shipment confirmed"})
}

func (h *TransactionHandler) BuyerConfirmReceipt(c *fiber.Ctx) error {
	txnID, err := parseID(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid transaction id"})
	}

	if err := h.Svc.BuyerConfirm(c.UserContext(), txnID, actorID(c)); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"message": "receipt confirmed, transaction completed"})
}

func (h *TransactionHandler) BuyerDispute(c *fiber.Ctx) error {
	txnID, err := parseID(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid transaction id"})
	}

	if err := h.Svc.BuyerDispute(c.UserContext(), txnID, actorID(c)); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"message": "dispute opened"})
}

// ListPurchases returns the transactions where the caller is the buyer.
func (h *TransactionHandler) ListPurchases(c *fiber.Ctx) error {
	txns, err := h.Svc.ListPurchases(c.UserContext(), actorID(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"transactions": txns})
}

// ListSales returns the transactions where the caller is the seller.
func (h *TransactionHandler) ListSales(c *fiber.Ctx) error {
	txns, err := h.Svc.ListSales(c.UserContext(), actorID(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"transactions": txns})
}

func parseID(raw string) (uint, error) {
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || n == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(n), nil
}

// errorResponse maps the service error taxonomy onto HTTP statuses.
func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		status = fiber.StatusForbidden
	case errors.Is(err, service.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, service.ErrInvalidState):
		status = fiber.StatusConflict
	case errors.Is(err, service.ErrDeadlineExpired):
		// The forced transition was applied; tell the caller what happened.
		status = fiber.StatusConflict
	case errors.Is(err, service.ErrGateway):
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
