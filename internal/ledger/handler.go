package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/produce-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// Handler exposes the ledger over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: v}
}

// MountRoutes registers ledger routes on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/items", h.registerItem)
	r.Post("/suppliers", h.registerParty(shared.RoleSupplier))
	r.Post("/sellers", h.registerParty(shared.RoleSeller))

	r.Route("/procurements", func(r chi.Router) {
		r.Post("/", h.addProcurement)
		r.Patch("/{id}", h.updateProcurement)
		r.Delete("/{id}", h.deleteProcurement)
	})
	r.Route("/sales", func(r chi.Router) {
		r.Post("/", h.addSales)
		r.Patch("/{id}", h.updateSales)
		r.Delete("/{id}", h.deleteSales)
	})
	r.Route("/supplier-payments", func(r chi.Router) {
		r.Post("/", h.addSupplierPayment)
		r.Patch("/{id}", h.updateSupplierPayment)
		r.Delete("/{id}", h.deleteSupplierPayment)
	})
	r.Route("/seller-payments", func(r chi.Router) {
		r.Post("/", h.addSellerPayment)
		r.Patch("/{id}", h.updateSellerPayment)
		r.Delete("/{id}", h.deleteSellerPayment)
	})
	r.Route("/damages", func(r chi.Router) {
		r.Post("/", h.addDamage)
		r.Patch("/{id}", h.updateDamage)
		r.Delete("/{id}", h.deleteDamage)
	})
	r.Put("/opening-balances", h.setOpeningBalance)
	r.Delete("/opening-balances/{role}/{partyID}/{itemID}", h.deleteOpeningBalance)

	r.Get("/items/{itemID}/stock", h.availableStock)
	r.Get("/outstanding/{role}/{partyID}/{itemID}", h.outstanding)
	r.Get("/sellers/{sellerID}/items/{itemID}/ledger", h.sellerLedger)
	r.Post("/inventory/rollover", h.rollover)
}

// decode reads and validates a request body. It writes the error response
// itself and reports whether the handler may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			httpx.RespondError(w, err)
			return false
		}
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Field()] = fe.Tag()
		}
		httpx.FieldProblem(w, fields)
		return false
	}
	return true
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

func queryForce(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("force")
	if raw == "" {
		return false, nil
	}
	force, err := strconv.ParseBool(raw)
	if err != nil {
		return false, shared.Invalid("force", "must be a boolean")
	}
	return force, nil
}

func optionalDate(raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := shared.ParseDate(*raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (h *Handler) respond(w http.ResponseWriter, status int, result any, err error) {
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, status, result)
}

type itemRequest struct {
	Name         string `json:"name" validate:"required"`
	QuantityKind string `json:"quantity_kind" validate:"omitempty,oneof=crate weight mixed"`
	UnitName     string `json:"unit_name"`
}

func (h *Handler) registerItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.RegisterItem(r.Context(), Item{
		Name:         req.Name,
		QuantityKind: QuantityKind(req.QuantityKind),
		UnitName:     req.UnitName,
	})
	h.respond(w, http.StatusCreated, item, err)
}

type partyRequest struct {
	Name    string `json:"name" validate:"required"`
	Contact string `json:"contact"`
}

func (h *Handler) registerParty(role shared.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req partyRequest
		if !h.decode(w, r, &req) {
			return
		}
		party, err := h.service.RegisterParty(r.Context(), Party{Role: role, Name: req.Name, Contact: req.Contact})
		h.respond(w, http.StatusCreated, party, err)
	}
}

type procurementRequest struct {
	Date       string          `json:"date" validate:"required"`
	SupplierID int64           `json:"supplier_id" validate:"required,gt=0"`
	ItemID     int64           `json:"item_id" validate:"required,gt=0"`
	Variety    string          `json:"variety" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
	Rate       decimal.Decimal `json:"rate"`
}

func (h *Handler) addProcurement(w http.ResponseWriter, r *http.Request) {
	var req procurementRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := shared.ParseDate(req.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.AddProcurementEntry(r.Context(), AddProcurementInput{
		Date:       date,
		SupplierID: req.SupplierID,
		ItemID:     req.ItemID,
		Variety:    req.Variety,
		Quantity:   req.Quantity,
		Rate:       req.Rate,
	})
	h.respond(w, http.StatusCreated, res, err)
}

type procurementPatchRequest struct {
	Quantity *decimal.Decimal `json:"quantity"`
	Rate     *decimal.Decimal `json:"rate"`
	Variety  *string          `json:"variety" validate:"omitempty,min=1"`
}

func (h *Handler) updateProcurement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req procurementPatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.UpdateProcurementEntry(r.Context(), id, ProcurementPatch{
		Quantity: req.Quantity,
		Rate:     req.Rate,
		Variety:  req.Variety,
	})
	h.respond(w, http.StatusOK, res, err)
}

func (h *Handler) deleteProcurement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	force, err := queryForce(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.DeleteProcurementEntry(r.Context(), id, force)
	h.respond(w, http.StatusOK, res, err)
}

type salesLineRequest struct {
	Variety  string          `json:"variety" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
	SaleRate decimal.Decimal `json:"sale_rate"`
}

type salesRequest struct {
	Date           string             `json:"date" validate:"required"`
	SellerID       int64              `json:"seller_id" validate:"required,gt=0"`
	ItemID         int64              `json:"item_id" validate:"required,gt=0"`
	Lines          []salesLineRequest `json:"lines" validate:"required,min=1,dive"`
	CratesReturned decimal.Decimal    `json:"crates_returned"`
	AmountPaid     decimal.Decimal    `json:"amount_paid"`
	Discount       decimal.Decimal    `json:"discount"`
}

func salesLines(in []salesLineRequest) []SalesLineInput {
	if in == nil {
		return nil
	}
	out := make([]SalesLineInput, len(in))
	for i, l := range in {
		out[i] = SalesLineInput{Variety: l.Variety, Quantity: l.Quantity, SaleRate: l.SaleRate}
	}
	return out
}

func (h *Handler) addSales(w http.ResponseWriter, r *http.Request) {
	var req salesRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := shared.ParseDate(req.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.AddSalesEntry(r.Context(), AddSalesInput{
		Date:           date,
		SellerID:       req.SellerID,
		ItemID:         req.ItemID,
		Lines:          salesLines(req.Lines),
		CratesReturned: req.CratesReturned,
		AmountPaid:     req.AmountPaid,
		Discount:       req.Discount,
	})
	h.respond(w, http.StatusCreated, res, err)
}

type salesPatchRequest struct {
	AmountPaid     *decimal.Decimal   `json:"amount_paid"`
	Discount       *decimal.Decimal   `json:"discount"`
	CratesReturned *decimal.Decimal   `json:"crates_returned"`
	Lines          []salesLineRequest `json:"lines" validate:"omitempty,min=1,dive"`
}

func (h *Handler) updateSales(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req salesPatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.UpdateSalesEntry(r.Context(), id, SalesPatch{
		AmountPaid:     req.AmountPaid,
		Discount:       req.Discount,
		CratesReturned: req.CratesReturned,
		Lines:          salesLines(req.Lines),
	})
	h.respond(w, http.StatusOK, res, err)
}

func (h *Handler) deleteSales(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	force, err := queryForce(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.DeleteSalesEntry(r.Context(), id, force)
	h.respond(w, http.StatusOK, res, err)
}

type supplierPaymentRequest struct {
	Date           string          `json:"date" validate:"required"`
	SupplierID     int64           `json:"supplier_id" validate:"required,gt=0"`
	ItemID         int64           `json:"item_id" validate:"required,gt=0"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	CratesReturned decimal.Decimal `json:"crates_returned"`
}

func (h *Handler) addSupplierPayment(w http.ResponseWriter, r *http.Request) {
	var req supplierPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := shared.ParseDate(req.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.AddSupplierPayment(r.Context(), SupplierPaymentInput{
		SupplierID:     req.SupplierID,
		ItemID:         req.ItemID,
		Date:           date,
		AmountPaid:     req.AmountPaid,
		CratesReturned: req.CratesReturned,
	})
	h.respond(w, http.StatusCreated, res, err)
}

type paymentPatchRequest struct {
	Date           *string          `json:"date"`
	Amount         *decimal.Decimal `json:"amount"`
	CratesReturned *decimal.Decimal `json:"crates_returned"`
}

func (req paymentPatchRequest) patch() (PaymentPatch, error) {
	date, err := optionalDate(req.Date)
	if err != nil {
		return PaymentPatch{}, err
	}
	return PaymentPatch{Date: date, Amount: req.Amount, CratesReturned: req.CratesReturned}, nil
}

func (h *Handler) updateSupplierPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req paymentPatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	patch, err := req.patch()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.UpdateSupplierPayment(r.Context(), id, patch)
	h.respond(w, http.StatusOK, res, err)
}

func (h *Handler) deleteSupplierPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.DeleteSupplierPayment(r.Context(), id)
	h.respond(w, http.StatusOK, res, err)
}

type sellerPaymentRequest struct {
	Date           string          `json:"date" validate:"required"`
	SellerID       int64           `json:"seller_id" validate:"required,gt=0"`
	ItemID         int64           `json:"item_id" validate:"required,gt=0"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	CratesReturned decimal.Decimal `json:"crates_returned"`
}

func (h *Handler) addSellerPayment(w http.ResponseWriter, r *http.Request) {
	var req sellerPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := shared.ParseDate(req.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.AddSellerPayment(r.Context(), SellerPaymentInput{
		SellerID:       req.SellerID,
		ItemID:         req.ItemID,
		Date:           date,
		AmountReceived: req.AmountReceived,
		CratesReturned: req.CratesReturned,
	})
	h.respond(w, http.StatusCreated, res, err)
}

func (h *Handler) updateSellerPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req paymentPatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	patch, err := req.patch()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.UpdateSellerPayment(r.Context(), id, patch)
	h.respond(w, http.StatusOK, res, err)
}

func (h *Handler) deleteSellerPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.DeleteSellerPayment(r.Context(), id)
	h.respond(w, http.StatusOK, res, err)
}

type damageRequest struct {
	Date                   string          `json:"date" validate:"required"`
	SupplierID             int64           `json:"supplier_id" validate:"required,gt=0"`
	ItemID                 int64           `json:"item_id" validate:"required,gt=0"`
	Variety                string          `json:"variety" validate:"required"`
	DamagedQty             decimal.Decimal `json:"damaged_qty"`
	DamagedReturnedQty     decimal.Decimal `json:"damaged_returned_qty"`
	SupplierDiscountAmount decimal.Decimal `json:"supplier_discount_amount"`
}

func (h *Handler) addDamage(w http.ResponseWriter, r *http.Request) {
	var req damageRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := shared.ParseDate(req.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.RecordDamageEntry(r.Context(), DamageInput{
		SupplierID:             req.SupplierID,
		ItemID:                 req.ItemID,
		Variety:                req.Variety,
		Date:                   date,
		DamagedQty:             req.DamagedQty,
		DamagedReturnedQty:     req.DamagedReturnedQty,
		SupplierDiscountAmount: req.SupplierDiscountAmount,
	})
	h.respond(w, http.StatusCreated, res, err)
}

type damagePatchRequest struct {
	DamagedQty             *decimal.Decimal `json:"damaged_qty"`
	DamagedReturnedQty     *decimal.Decimal `json:"damaged_returned_qty"`
	SupplierDiscountAmount *decimal.Decimal `json:"supplier_discount_amount"`
}

func (h *Handler) updateDamage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req damagePatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.UpdateDamageEntry(r.Context(), id, DamagePatch{
		DamagedQty:             req.DamagedQty,
		DamagedReturnedQty:     req.DamagedReturnedQty,
		SupplierDiscountAmount: req.SupplierDiscountAmount,
	})
	h.respond(w, http.StatusOK, res, err)
}

func (h *Handler) deleteDamage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.DeleteDamageEntry(r.Context(), id)
	h.respond(w, http.StatusOK, res, err)
}

type openingBalanceRequest struct {
	Role          string          `json:"role" validate:"required,oneof=supplier seller"`
	PartyID       int64           `json:"party_id" validate:"required,gt=0"`
	ItemID        int64           `json:"item_id" validate:"required,gt=0"`
	PaymentDue    decimal.Decimal `json:"payment_due"`
	QuantityDue   decimal.Decimal `json:"quantity_due"`
	EffectiveFrom string          `json:"effective_from" validate:"required"`
}

func (h *Handler) setOpeningBalance(w http.ResponseWriter, r *http.Request) {
	var req openingBalanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	from, err := shared.ParseDate(req.EffectiveFrom)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.SetOpeningBalance(r.Context(), OpeningBalanceInput{
		Role:          shared.Role(req.Role),
		PartyID:       req.PartyID,
		ItemID:        req.ItemID,
		PaymentDue:    req.PaymentDue,
		QuantityDue:   req.QuantityDue,
		EffectiveFrom: from,
	})
	h.respond(w, http.StatusOK, res, err)
}

// pairParams reads the {role}/{partyID}/{itemID} path triple.
func pairParams(r *http.Request) (shared.Role, int64, int64, error) {
	role := shared.Role(chi.URLParam(r, "role"))
	if !role.Valid() {
		return "", 0, 0, shared.Invalid("role", "must be supplier or seller")
	}
	partyID, err := pathID(r, "partyID")
	if err != nil {
		return "", 0, 0, err
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		return "", 0, 0, err
	}
	return role, partyID, itemID, nil
}

func (h *Handler) deleteOpeningBalance(w http.ResponseWriter, r *http.Request) {
	role, partyID, itemID, err := pairParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.DeleteOpeningBalance(r.Context(), role, partyID, itemID)
	h.respond(w, http.StatusOK, res, err)
}

func (h *Handler) availableStock(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	date := h.service.Today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		if date, err = shared.ParseDate(raw); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	stock, err := h.service.AvailableStock(r.Context(), itemID, date)
	h.respond(w, http.StatusOK, map[string]any{
		"item_id": itemID,
		"date":    shared.FormatDate(date),
		"stock":   stock,
	}, err)
}

func (h *Handler) outstanding(w http.ResponseWriter, r *http.Request) {
	role, partyID, itemID, err := pairParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.Outstanding(r.Context(), role, partyID, itemID)
	h.respond(w, http.StatusOK, o, err)
}

func (h *Handler) sellerLedger(w http.ResponseWriter, r *http.Request) {
	sellerID, err := pathID(r, "sellerID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	statement, err := h.service.SellerLedger(r.Context(), sellerID, itemID)
	h.respond(w, http.StatusOK, statement, err)
}

func (h *Handler) rollover(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.RolloverInventory(r.Context())
	if err != nil {
		h.logger.Error("inventory rollover", slog.Any("error", err))
	}
	h.respond(w, http.StatusOK, map[string]any{
		"business_day": shared.FormatDate(h.service.Today()),
		"rows":         n,
	}, err)
}
