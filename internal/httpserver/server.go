package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/copperkettle/loyaltybridge/pkg/loyalty"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Run boots the widget-facing HTTP API using the supplied configuration
// and an already-wired loyalty service.
func Run(ctx context.Context, cfg Config, service *loyalty.Service, logger *zap.Logger) error {
	handler := &httpHandler{
		logger:  logger,
		service: service,
		cfg:     cfg,
	}
	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("loyalty api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(ctx *gin.Context) {
		ctx.JSON(http.StatusMethodNotAllowed, errorResponse("method_not_allowed", "method not allowed"))
	})

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.POST("/loyalty/identify", handler.handleIdentify)
	api.GET("/loyalty/lookup", handler.handleLookup)
	api.POST("/loyalty/account", handler.handleAccount)
	api.GET("/loyalty/rewards", handler.handleRewards)
	api.GET("/loyalty/transactions", handler.handleTransactions)
	api.GET("/loyalty/promotions", handler.handlePromotions)
	api.POST("/loyalty/redeem", handler.handleRedeem)
	api.POST("/loyalty/redeem-promotion", handler.handleRedeemPromotion)
	api.POST("/loyalty/release", handler.handleRelease)
	api.POST("/webhooks/orders", handler.handleOrderWebhook)
	api.POST("/admin/sync-rewards", handler.handleSyncRewards)

	return router
}

type httpHandler struct {
	logger  *zap.Logger
	service *loyalty.Service
	cfg     Config
}

func (handler *httpHandler) handleIdentify(ctx *gin.Context) {
	var request identifyRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	profile, err := handler.service.Identify(requestCtx, loyalty.Identity{
		Phone:             request.Phone,
		Email:             request.Email,
		ShopifyCustomerID: request.ShopifyCustomerID,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"profile": profileToPayload(profile)})
}

func (handler *httpHandler) handleLookup(ctx *gin.Context) {
	phone := ctx.Query("phone")
	if strings.TrimSpace(phone) == "" {
		ctx.JSON(http.StatusBadRequest, errorResponse("missing_phone", "phone query parameter is required"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	profile, account, rewards, err := handler.service.LookupByPhone(requestCtx, phone)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	// "Nothing found" is a valid result on this read path.
	envelope := lookupEnvelope{AvailableRewards: rewardsToPayload(rewards)}
	if profile != nil {
		envelope.Profile = profileToPayload(profile)
	}
	if account != nil {
		envelope.LoyaltyAccount = accountToPayload(account)
	}
	ctx.JSON(http.StatusOK, envelope)
}

func (handler *httpHandler) handleAccount(ctx *gin.Context) {
	var request accountRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if strings.TrimSpace(request.ProfileID) == "" {
		ctx.JSON(http.StatusBadRequest, errorResponse("missing_profile_id", "profile_id is required"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	account, rewards, err := handler.service.BindAccount(requestCtx, request.ProfileID, request.Phone)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, accountEnvelope{
		LoyaltyAccount:   accountToPayload(account),
		AvailableRewards: rewardsToPayload(rewards),
	})
}

func (handler *httpHandler) handleRewards(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	if accountID := ctx.Query("account_id"); strings.TrimSpace(accountID) != "" {
		account, rewards, err := handler.service.Account(requestCtx, accountID)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, accountEnvelope{
			LoyaltyAccount:   accountToPayload(account),
			AvailableRewards: rewardsToPayload(rewards),
		})
		return
	}

	balanceRaw := ctx.Query("balance")
	balance, err := strconv.ParseInt(strings.TrimSpace(balanceRaw), 10, 64)
	if err != nil || balance < 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_balance", "account_id or a non-negative balance is required"))
		return
	}
	rewards, err := handler.service.AvailableRewards(requestCtx, balance)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"available_rewards": rewardsToPayload(rewards)})
}

func (handler *httpHandler) handleTransactions(ctx *gin.Context) {
	accountID := ctx.Query("account_id")
	if strings.TrimSpace(accountID) == "" {
		ctx.JSON(http.StatusBadRequest, errorResponse("missing_account_id", "account_id query parameter is required"))
		return
	}
	limit := 50
	if limitRaw := ctx.Query("limit"); limitRaw != "" {
		if parsed, err := strconv.Atoi(limitRaw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	records, err := handler.service.Transactions(requestCtx, accountID, limit)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payloads := make([]transactionPayload, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, transactionPayload{
			ID:             record.ID,
			AccountID:      record.AccountID,
			Type:           string(record.Type),
			Points:         record.Points,
			Description:    record.Description,
			ExternalID:     record.ExternalID,
			DiscountCode:   record.DiscountCode,
			CreatedUnixUTC: record.CreatedUnixUTC,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"transactions": payloads})
}

func (handler *httpHandler) handlePromotions(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	promotions, err := handler.service.Promotions(requestCtx, ctx.Query("square_customer_id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payloads := make([]promotionPayload, 0, len(promotions))
	for _, promotion := range promotions {
		payloads = append(payloads, promotionToPayload(promotion))
	}
	ctx.JSON(http.StatusOK, gin.H{"promotions": payloads})
}

func (handler *httpHandler) handleRedeem(ctx *gin.Context) {
	var request redeemRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if strings.TrimSpace(request.AccountID) == "" || strings.TrimSpace(request.RewardID) == "" {
		ctx.JSON(http.StatusBadRequest, errorResponse("missing_field", "account_id and reward_id are required"))
		return
	}
	keyRaw := request.IdempotencyKey
	if strings.TrimSpace(keyRaw) == "" {
		keyRaw = uuid.NewString()
	}
	idempotencyKey, err := loyalty.NewIdempotencyKey(keyRaw)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_idempotency_key", "idempotency key must be non-empty"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	redemption, err := handler.service.Redeem(requestCtx, request.AccountID, request.RewardID, idempotencyKey)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, redeemEnvelope{
		DiscountCode:    redemption.DiscountCode,
		RewardID:        redemption.RewardID,
		PointsSpent:     redemption.PointsSpent,
		Balance:         redemption.Balance,
		ManualSetupNote: redemption.ManualSetupNote,
	})
}

func (handler *httpHandler) handleRedeemPromotion(ctx *gin.Context) {
	var request redeemPromotionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if strings.TrimSpace(request.PromotionID) == "" {
		ctx.JSON(http.StatusBadRequest, errorResponse("missing_promotion_id", "promotion_id is required"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	code, err := handler.service.RedeemPromotion(requestCtx, request.PromotionID, request.SquareCustomerID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"discount_code": code})
}

func (handler *httpHandler) handleRelease(ctx *gin.Context) {
	var request releaseRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if strings.TrimSpace(request.DiscountCode) == "" {
		ctx.JSON(http.StatusBadRequest, errorResponse("missing_discount_code", "discount_code is required"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	if err := handler.service.Release(requestCtx, request.DiscountCode); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "released"})
}

// handleOrderWebhook finalizes the reservations behind any matching
// discount codes and, when accrual is enabled, reports the order spend to
// Square. Failures are logged but never fail the webhook response; Shopify
// retry storms are worse than a missed finalize.
func (handler *httpHandler) handleOrderWebhook(ctx *gin.Context) {
	var order orderWebhook
	if err := ctx.ShouldBindJSON(&order); err != nil {
		ctx.JSON(http.StatusOK, webhookEnvelope{})
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	codes := make([]string, 0, len(order.DiscountCodes))
	for _, discount := range order.DiscountCodes {
		codes = append(codes, discount.Code)
	}
	result, err := handler.service.Finalize(requestCtx, codes)
	if err != nil {
		handler.logger.Error("order webhook finalize failed", zap.Error(err))
	}

	envelope := webhookEnvelope{Processed: result.Processed, Failed: result.Failed}
	if handler.cfg.AccrualEnabled {
		envelope.PointsAccrued = handler.accrueFromOrder(requestCtx, order)
	}
	ctx.JSON(http.StatusOK, envelope)
}

func (handler *httpHandler) accrueFromOrder(ctx context.Context, order orderWebhook) int64 {
	identity := loyalty.Identity{Email: order.Email, Phone: order.Phone}
	if order.Customer != nil {
		if order.Customer.ID != 0 {
			identity.ShopifyCustomerID = strconv.FormatInt(order.Customer.ID, 10)
		}
		if identity.Email == "" {
			identity.Email = order.Customer.Email
		}
		if identity.Phone == "" {
			identity.Phone = order.Customer.Phone
		}
	}
	if identity.ShopifyCustomerID == "" && identity.Email == "" && identity.Phone == "" {
		return 0
	}
	spendMinor := parsePriceMinor(order.TotalPrice)
	if spendMinor <= 0 {
		return 0
	}
	_, earned, err := handler.service.Accrue(ctx, identity, strconv.FormatInt(order.ID, 10), spendMinor)
	if err != nil {
		if !errors.Is(err, loyalty.ErrUnknownProfile) && !errors.Is(err, loyalty.ErrUnknownAccount) {
			handler.logger.Error("order webhook accrual failed", zap.Int64("order_id", order.ID), zap.Error(err))
		}
		return 0
	}
	return earned
}

func (handler *httpHandler) handleSyncRewards(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	result, err := handler.service.SyncCatalog(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, syncEnvelope{
		Synced:  result.Synced,
		Skipped: result.Skipped,
		Total:   result.Total,
	})
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.UpstreamTimeout)
}

// respondError maps domain errors onto the API's error taxonomy:
// validation failures are 400, unknown redemption targets are 404,
// upstream and unexpected failures are 500 with detail kept in the logs.
func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, loyalty.ErrMissingIdentifier):
		ctx.JSON(http.StatusBadRequest, errorResponse("missing_identifier", "at least one of phone, email, or shopify_customer_id is required"))
	case errors.Is(err, loyalty.ErrInvalidPhoneNumber):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_phone", "phone number could not be normalized"))
	case errors.Is(err, loyalty.ErrPhoneRequired):
		ctx.JSON(http.StatusBadRequest, errorResponse("phone_required", "a phone number is required to enroll"))
	case errors.Is(err, loyalty.ErrInsufficientPoints):
		ctx.JSON(http.StatusBadRequest, errorResponse("insufficient_points", "not enough points for this reward"))
	case errors.Is(err, loyalty.ErrPromotionNotEligible):
		ctx.JSON(http.StatusBadRequest, errorResponse("promotion_not_eligible", "customer is not eligible for this promotion"))
	case errors.Is(err, loyalty.ErrUnknownProfile),
		errors.Is(err, loyalty.ErrUnknownAccount),
		errors.Is(err, loyalty.ErrUnknownReward),
		errors.Is(err, loyalty.ErrUnknownRedemption),
		errors.Is(err, loyalty.ErrUnknownPromotion):
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	default:
		handler.logger.Error("request failed", zap.Error(err))
		var operationError loyalty.OperationError
		if errors.As(err, &operationError) {
			ctx.JSON(http.StatusInternalServerError, errorResponse("upstream_error", "failed to "+operationError.Code()+" "+operationError.Subject()))
			return
		}
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "unexpected error"))
	}
}

func errorResponse(code string, message string) errorEnvelope {
	return errorEnvelope{Error: errorPayload{Code: code, Message: message}}
}

func profileToPayload(profile *loyalty.Profile) *profilePayload {
	return &profilePayload{
		ID:                profile.ID,
		ShopifyCustomerID: profile.ShopifyCustomerID,
		SquareCustomerID:  profile.SquareCustomerID,
		Email:             profile.Email,
		Phone:             profile.Phone,
		GivenName:         profile.GivenName,
		FamilyName:        profile.FamilyName,
	}
}

func accountToPayload(account *loyalty.Account) *accountPayload {
	return &accountPayload{
		ID:              account.ID,
		ProfileID:       account.ProfileID,
		SquareAccountID: account.SquareAccountID,
		ProgramID:       account.ProgramID,
		Balance:         account.Balance,
		LifetimePoints:  account.LifetimePoints,
	}
}

func rewardsToPayload(rewards []loyalty.RewardDefinition) []rewardPayload {
	payloads := make([]rewardPayload, 0, len(rewards))
	for _, reward := range rewards {
		payloads = append(payloads, rewardPayload{
			ID:             reward.ID,
			SquareRewardID: reward.SquareRewardID,
			Name:           reward.Name,
			PointsRequired: reward.PointsRequired,
			DiscountType:   string(reward.DiscountType),
			AmountMinor:    reward.AmountMinor,
			Percentage:     reward.Percentage,
			MaxAmountMinor: reward.MaxAmountMinor,
		})
	}
	return payloads
}

func promotionToPayload(promotion loyalty.EvaluatedPromotion) promotionPayload {
	payload := promotionPayload{
		ID:                promotion.ID,
		Name:              promotion.Name,
		Status:            promotion.Status,
		IncentiveType:     string(promotion.IncentiveType),
		Percentage:        promotion.Percentage,
		FixedAmountMinor:  promotion.FixedAmountMinor,
		MinimumSpend:      promotion.MinimumSpend,
		CustomerEligible:  promotion.CustomerEligible,
		EligibilityReason: promotion.EligibilityReason,
	}
	if promotion.StartsAt != nil {
		payload.StartsAt = promotion.StartsAt.UTC().Format(time.RFC3339)
	}
	if promotion.EndsAt != nil {
		payload.EndsAt = promotion.EndsAt.UTC().Format(time.RFC3339)
	}
	return payload
}

// parsePriceMinor converts Shopify's decimal price strings ("123.45") to
// minor currency units. Malformed input yields zero rather than an error;
// the webhook path treats that as "nothing to accrue".
func parsePriceMinor(raw string) int64 {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0
	}
	parts := strings.SplitN(trimmed, ".", 2)
	units, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || units < 0 {
		return 0
	}
	var cents int64
	if len(parts) == 2 {
		fraction := parts[1]
		if len(fraction) > 2 {
			fraction = fraction[:2]
		}
		for len(fraction) < 2 {
			fraction += "0"
		}
		parsed, fracErr := strconv.ParseInt(fraction, 10, 64)
		if fracErr != nil {
			return 0
		}
		cents = parsed
	}
	return units*100 + cents
}
