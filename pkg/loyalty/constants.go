package loyalty

const (
	operationIdentify       = "identify"
	operationBind           = "bind"
	operationSyncCatalog    = "sync_catalog"
	operationRedeem         = "redeem"
	operationFinalize       = "finalize"
	operationRelease        = "release"
	operationAccrue         = "accrue"
	operationListPromotions = "list_promotions"
	operationRedeemPromo    = "redeem_promotion"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// DiscountCodePrefix marks codes minted by this service; the order
	// webhook only inspects codes carrying it.
	DiscountCodePrefix = "LOYALTY-"

	discountCodeLength = 8

	// SettingSquareEnvironment selects the Square base URL
	// ("sandbox" | "production"); read before every Square call.
	SettingSquareEnvironment = "square_environment"
)
