package bingx

import (
	"markarb/internal/application/port"
	"markarb/internal/domain/model"
	"markarb/internal/infrastructure/pricefeed"

	"github.com/rs/zerolog/log"
)

// init() automatically registers BingX mark price feed factory
func init() {
	pricefeed.Register(model.ExchangeBingX, func(opts pricefeed.Options) port.PriceFeed {
		feed, err := NewMarkPriceFeed(opts)
		if err != nil {
			log.Error().Err(err).Msg("bingx mark price feed build failed")
			return nil
		}
		return feed
	})
}
