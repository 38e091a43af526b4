// Package confidence scores classification certainty.
//
// Confidence is carried as a fraction in [0, 1]. Issue weights and the review
// ceiling are expressed in whole percentage points, and all arithmetic on them
// is done in points so repeated updates stay exact.
package confidence
