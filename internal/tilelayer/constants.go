package tilelayer

const (
	// PreloadingTileScale widens the preload test circle around a tile center
	PreloadingTileScale = 1.5

	// DiscreteZoomLevelBias avoids flicker between integer zoom levels due to rounding
	DiscreteZoomLevelBias = 0.001

	// SubdivisionThreshold is the camera plane distance (in world units, scaled by the tile zoom)
	// below which a tile is considered too coarse
	SubdivisionThreshold = 1.0

	MaxParentSearchDepth = 6
	MaxChildSearchDepth  = 3

	// PreloadingPriorityOffset is added to the update priority of preloading fetches
	PreloadingPriorityOffset = -2

	// ExtraTileFootprint is the fixed bookkeeping cost added to every cached tile
	ExtraTileFootprint = 4096

	DefaultVisibleCacheCapacity    = 128 * 1024 * 1024
	DefaultPreloadingCacheCapacity = 10 * 1024 * 1024

	// seamlessPanningCopies is the number of world copies tested on each side of the primary world
	seamlessPanningCopies = 5
)
